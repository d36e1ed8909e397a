package api

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-chi/jwtauth"
	"github.com/tendant/simple-asset/pkg/simpleasset"
)

// PrincipalFromContext builds the caller from the JWT claims placed in ctx by
// jwtauth.Verifier. "sub" carries the user ID and "admin" marks administrators.
func PrincipalFromContext(ctx context.Context) (simpleasset.Principal, error) {
	_, claims, err := jwtauth.FromContext(ctx)
	if err != nil {
		return simpleasset.Principal{}, fmt.Errorf("%w: %v", simpleasset.ErrForbidden, err)
	}

	var p simpleasset.Principal
	switch sub := claims["sub"].(type) {
	case string:
		id, err := strconv.ParseInt(sub, 10, 64)
		if err != nil {
			return p, fmt.Errorf("%w: subject %q is not a user id", simpleasset.ErrForbidden, sub)
		}
		p.UserID = id
	case float64:
		p.UserID = int64(sub)
	}
	if p.UserID <= 0 {
		return simpleasset.Principal{}, fmt.Errorf("%w: token has no subject", simpleasset.ErrForbidden)
	}

	if admin, ok := claims["admin"].(bool); ok {
		p.Admin = admin
	}
	return p, nil
}
