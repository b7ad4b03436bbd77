package model

import (
	"fmt"

	ferrors "archflow/internal/errors"
)

// Validate checks the fields the flow engine relies on. It reports every
// violation at once in the error details.
func Validate(m *Model) error {
	if m == nil {
		return ferrors.Newf(ferrors.ModelInvalid, "model is nil")
	}

	var problems []string
	for i := range m.Packages {
		pkg := &m.Packages[i]
		where := fmt.Sprintf("packages[%d]", i)
		if pkg.FullName == "" {
			problems = append(problems, where+": missing fullName")
		}
		for j, fn := range pkg.Functions {
			if fn.Name == "" {
				problems = append(problems, fmt.Sprintf("%s.functions[%d]: missing name", where, j))
			}
		}
		for j, st := range pkg.Structs {
			if st.Name == "" {
				problems = append(problems, fmt.Sprintf("%s.structs[%d]: missing name", where, j))
			}
			for k, method := range st.Methods {
				if method.Name == "" {
					problems = append(problems, fmt.Sprintf("%s.structs[%d].methods[%d]: missing name", where, j, k))
				}
			}
		}
		for j, iface := range pkg.Interfaces {
			if iface.Name == "" {
				problems = append(problems, fmt.Sprintf("%s.interfaces[%d]: missing name", where, j))
			}
		}
	}

	if len(problems) > 0 {
		return ferrors.Newf(ferrors.ModelInvalid, "model has %d contract violation(s)", len(problems)).
			WithDetails(problems)
	}
	return nil
}
