package handler

import (
	"pollbank/internal/users/service"
	"pollbank/pkg/domain"
	dErrors "pollbank/pkg/domain-errors"
)

const maxFieldLength = 256

// UpdateRequest is the body of PUT /users/{id}. Omitted fields are left
// unchanged; the login name cannot be changed.
type UpdateRequest struct {
	OfficerName     *string `json:"officer_name"`
	Designation     *string `json:"designation"`
	Mobile          *string `json:"mobile"`
	Role            *string `json:"role"`
	Password        *string `json:"password"`
	CurrentPassword string  `json:"current_password"`

	role *domain.Role
}

func (r *UpdateRequest) Validate() error {
	fields := []struct {
		name  string
		value *string
	}{
		{"officer_name", r.OfficerName},
		{"designation", r.Designation},
		{"mobile", r.Mobile},
		{"password", r.Password},
	}
	for _, f := range fields {
		if f.value != nil && len(*f.value) > maxFieldLength {
			return dErrors.New(dErrors.CodeValidation, f.name+" is too long")
		}
	}
	if r.Role != nil {
		role, err := domain.ParseRole(*r.Role)
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, "role must be admin or regional")
		}
		r.role = &role
	}
	return nil
}

func (r *UpdateRequest) Update() service.Update {
	return service.Update{
		OfficerName:     r.OfficerName,
		Designation:     r.Designation,
		Mobile:          r.Mobile,
		Role:            r.role,
		Password:        r.Password,
		CurrentPassword: r.CurrentPassword,
	}
}
