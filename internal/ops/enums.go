package ops

import "github.com/roach88/recon/internal/signature"

// ViewDiscipline is a level's or view's discipline. Values are bit flags;
// Coordination covers all of them.
var ViewDiscipline = signature.NewEnum("ViewDiscipline",
	signature.Member{Name: "Architectural", Value: 1},
	signature.Member{Name: "Structural", Value: 2},
	signature.Member{Name: "Mechanical", Value: 4},
	signature.Member{Name: "Electrical", Value: 8},
	signature.Member{Name: "Plumbing", Value: 16},
	signature.Member{Name: "Coordination", Value: 4095},
)

// ViewDetailLevel is the detail a tag is drawn at. Undefined (0) is not
// a legal input.
var ViewDetailLevel = signature.NewEnum("ViewDetailLevel",
	signature.Member{Name: "Coarse", Value: 1},
	signature.Member{Name: "Medium", Value: 2},
	signature.Member{Name: "Fine", Value: 3},
)

// ParameterType is the data type of a shared parameter.
var ParameterType = signature.NewEnum("ParameterType",
	signature.Member{Name: "Text", Value: 1},
	signature.Member{Name: "Integer", Value: 2},
	signature.Member{Name: "Number", Value: 3},
	signature.Member{Name: "Length", Value: 4},
	signature.Member{Name: "Area", Value: 5},
	signature.Member{Name: "Volume", Value: 6},
	signature.Member{Name: "Angle", Value: 7},
	signature.Member{Name: "URL", Value: 8},
	signature.Member{Name: "Material", Value: 9},
	signature.Member{Name: "YesNo", Value: 10},
)

// ParameterClass is where a parameter definition comes from.
var ParameterClass = signature.NewEnum("ParameterClass",
	signature.Member{Name: "BuiltIn", Value: 1},
	signature.Member{Name: "Project", Value: 2},
	signature.Member{Name: "Family", Value: 3},
	signature.Member{Name: "Shared", Value: 4},
)

// Enums lists every enumeration by name.
var Enums = map[string]*signature.Enum{
	ViewDiscipline.Name:  ViewDiscipline,
	ViewDetailLevel.Name: ViewDetailLevel,
	ParameterType.Name:   ParameterType,
	ParameterClass.Name:  ParameterClass,
}

// member returns the bound value of the named member. It panics on unknown
// names; callers pass constants.
func member(e *signature.Enum, name string) signature.Member {
	m, ok := e.Parse(name)
	if !ok {
		panic("ops: unknown " + e.Name + " member " + name)
	}
	return m
}
