package handler

import (
	"net"
	"net/http"

	"gridroom/internal/pkg/auth/jwt"
	"gridroom/internal/pkg/errs"
	"gridroom/internal/pkg/logx"
	"gridroom/internal/pkg/req"
	"gridroom/internal/pkg/resp"
)

type BanInput struct {
	Targets []string `json:"targets"`
}

// bindTargets decodes and validates a list of IP addresses.
func bindTargets(w http.ResponseWriter, r *http.Request) ([]string, *errs.CustomError) {
	var input BanInput
	if customErr := req.BindJSON(w, r, &input); customErr != nil {
		return nil, customErr
	}

	if len(input.Targets) == 0 {
		return nil, errs.NewError(errs.ErrInvalidParams)
	}
	for _, ip := range input.Targets {
		if net.ParseIP(ip) == nil {
			return nil, errs.NewError(errs.ErrInvalidParams)
		}
	}
	return input.Targets, nil
}

func operator(r *http.Request) string {
	if p := jwt.GetPayloadFromContext(r); p != nil {
		return p.Operator
	}
	return ""
}

// HandleBan bans addresses and purges their users.
func HandleBan(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		targets, customErr := bindTargets(w, r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		purged, err := deps.Hub.Ban(targets)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		logx.Info("Addresses banned.", "operator", operator(r), "count", len(targets), "purged", purged)
		resp.RespondSuccess(w, r, map[string]int{"purged": purged})
	}
}

// HandleUnban lifts bans.
func HandleUnban(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		targets, customErr := bindTargets(w, r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if err := deps.Hub.Unban(targets); err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		logx.Info("Addresses unbanned.", "operator", operator(r), "count", len(targets))
		resp.RespondSuccess(w, r, nil)
	}
}
