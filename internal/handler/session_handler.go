/*
Package handler provides HTTP handler functions for session creation.
*/
package handler

import (
	"net/http"

	"gridroom/internal/app/presence"
	"gridroom/internal/pkg/errs"
	"gridroom/internal/pkg/logx"
	"gridroom/internal/pkg/req"
	"gridroom/internal/pkg/resp"
)

type LoginInput struct {
	DisplayName string `json:"displayName"`
	AvatarID    string `json:"avatarId,omitempty"`
	AreaID      string `json:"areaId"`
	RoomID      string `json:"roomId,omitempty"`
}

// HandleLogin creates a session. The returned private id authenticates the websocket
// connect frame; the user stays a ghost until then.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.PoW.ConsumeProofToken(r); err != nil {
			logx.Warn("Login rejected: proof of work missing.", "error", err.Error())
			resp.RespondError(w, r, errs.NewError(errs.ErrPowChallengeRequired))
			return
		}

		var input LoginInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		ip := req.ClientIP(r)

		session, err := deps.Hub.Login(presence.LoginRequest{
			Name:      input.DisplayName,
			Character: input.AvatarID,
			Area:      input.AreaID,
			Room:      input.RoomID,
			IP:        ip,
		})
		if err != nil {
			logx.Info("Login rejected.", "error", err.Error(), "area_id", input.AreaID, "ip", logx.AnonymizeIP(ip))
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, session)
	}
}
