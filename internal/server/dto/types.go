// Exported request and response types for the morphd API.
package dto

import "net/url"

// Validatable is implemented by all request types.
type Validatable interface {
	Validate() error
}

// ProcessReq is the request body for POST /process.
type ProcessReq struct {
	AccessToken string `json:"access_token"`
	RepoName    string `json:"repo_name"`
	BranchName  string `json:"branch_name"`
	Prompt      string `json:"prompt"`
	CallbackURL string `json:"callback_url,omitempty"`
	Push        bool   `json:"push,omitempty"`
}

// Validate checks all required fields before any workspace work begins.
func (r *ProcessReq) Validate() error {
	if r.AccessToken == "" {
		return BadRequest("missing required field: access_token")
	}
	if r.RepoName == "" {
		return BadRequest("missing required field: repo_name")
	}
	if r.BranchName == "" {
		return BadRequest("missing required field: branch_name")
	}
	if r.Prompt == "" {
		return BadRequest("missing required field: prompt")
	}
	if r.CallbackURL != "" {
		u, err := url.Parse(r.CallbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return BadRequest("callback_url must be an absolute http(s) URL")
		}
	}
	return nil
}

// HealthResp is the response for GET /health.
type HealthResp struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// EmptyReq is used for endpoints that take no request body.
type EmptyReq struct{}

// Validate implements Validatable.
func (*EmptyReq) Validate() error { return nil }
