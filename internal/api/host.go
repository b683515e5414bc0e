package api

import (
	"net/http"

	"go.uber.org/zap"
)

func (d *Dependencies) handleGetHost(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, d.hostResp())
}

// handleSetHost lets a deploy pipeline pause forwarding, e.g. during a build.
func (d *Dependencies) handleSetHost(w http.ResponseWriter, r *http.Request) {
	var req HostReq
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Active != nil {
		d.Host.SetActive(*req.Active)
	}
	if req.BuildInProgress != nil {
		d.Host.SetBuildInProgress(*req.BuildInProgress)
	}

	resp := d.hostResp()
	d.Logger.Info("host lifecycle updated",
		zap.Bool("active", resp.Active),
		zap.Bool("build_in_progress", resp.BuildInProgress),
	)
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) hostResp() HostResp {
	return HostResp{
		Active:          d.Host.IsActive(),
		BuildInProgress: d.Host.IsBuildInProgress(),
	}
}
