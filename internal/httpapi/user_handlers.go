package httpapi

import (
	"net/http"
	"strings"

	"passage.dev/internal/audit"
	"passage.dev/internal/auth"
)

type updateAccountRequest struct {
	Name    *string `json:"name"`
	Picture *string `json:"picture"`
	Role    *string `json:"role"`
}

type listAccountsResponse struct {
	Items []*auth.Account `json:"items"`
	Count int             `json:"count"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermissions(w, r, auth.PermissionReadUsers) {
		return
	}
	accounts, err := a.auth.ListAccounts(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listAccountsResponse{Items: accounts, Count: len(accounts)})
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getUser(w, r, id)
	case http.MethodPut:
		a.updateUser(w, r, id)
	case http.MethodDelete:
		a.deleteUser(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request, id string) {
	if !a.ensureOwnerOr(w, r, id, auth.PermissionReadUsers) {
		return
	}
	account, err := a.auth.GetAccount(r.Context(), id)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request, id string) {
	if !a.ensureOwnerOr(w, r, id, auth.PermissionManageUsers) {
		return
	}
	var req updateAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	upd := auth.AccountUpdate{Name: req.Name, Picture: req.Picture}
	if req.Role != nil {
		// Role changes are never self-service.
		if !a.ensureRole(w, r, auth.RoleAdmin) {
			return
		}
		role := auth.Role(*req.Role)
		if !auth.ValidRole(role) {
			writeError(w, r, http.StatusBadRequest, "unknown role")
			return
		}
		upd.Role = &role
	}

	account, err := a.auth.UpdateAccount(r.Context(), id, upd)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "account.update", map[string]any{
		"target_id": id,
	})
	writeJSON(w, http.StatusOK, account)
}

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request, id string) {
	if !a.ensureOwnerOr(w, r, id, auth.PermissionManageUsers) {
		return
	}
	if err := a.auth.DeleteAccount(r.Context(), id); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "account.delete", map[string]any{
		"target_id": id,
	})
	w.WriteHeader(http.StatusNoContent)
}
