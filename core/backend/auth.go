package backend

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/trackww/backend/core/access"
	"github.com/trackww/backend/core/crud"
	"github.com/trackww/backend/core/logger"
	"github.com/trackww/backend/core/query"
	"github.com/trackww/backend/core/resource"
)

// DefaultTokenValidity is how long an issued login token stays valid.
const DefaultTokenValidity = 24 * time.Hour

// authUserResource is the resource holding the user accounts.
const authUserResource = "user"

func (b *Backend) handleAuth(router *mux.Router) {
	nillog := logger.Default()
	nillog.Debugln("auth")
	nillog.Debugln("  handle auth route: /api/auth/login POST")

	router.HandleFunc("/api/auth/login", b.login).Methods(http.MethodPost)
}

// login checks the credentials against the user table and issues a signed
// token. The identifier matches either the user id or the email column.
func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID  string `json:"user_id"`
		UserPwd string `json:"user_pwd"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "cannot parse body: "+err.Error())
		return
	}
	if body.UserID == "" || body.UserPwd == "" {
		writeError(w, http.StatusBadRequest, "user ID and password are required")
		return
	}

	rc, ok := b.Registry.Lookup(authUserResource)
	if !ok {
		writeError(w, http.StatusInternalServerError, "login is not configured")
		return
	}

	user, err := b.findLoginUser(r, rc, body.UserID)
	if err != nil {
		if errors.Is(err, crud.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid user/password")
			return
		}
		writeEngineError(w, r, authUserResource, err)
		return
	}

	password, _ := user["user_pwd"].(string)
	if password == "" || password != body.UserPwd {
		writeError(w, http.StatusUnauthorized, "invalid user/password")
		return
	}
	if active, ok := user["user_active"].(string); ok && active != "Y" {
		writeError(w, http.StatusUnauthorized, "inactive user")
		return
	}
	if validTill, ok := user["valid_till"].(time.Time); ok && validTill.Before(time.Now()) {
		writeError(w, http.StatusUnauthorized, "user login expired")
		return
	}

	userID, _ := user[rc.PrimaryKey[0]].(string)
	token, err := access.IssueToken(b.jwtSecret, userID, b.tokenValidity)
	if err != nil {
		logger.FromContext(r.Context()).WithError(err).Errorln("cannot sign token")
		writeError(w, http.StatusInternalServerError, "cannot sign token")
		return
	}

	delete(user, "user_pwd")
	writeJSON(w, http.StatusOK, struct {
		Status string      `json:"status"`
		Token  string      `json:"token"`
		Data   interface{} `json:"data"`
	}{Status: "success", Token: token, Data: map[string]interface{}{"user": user}})
}

// findLoginUser looks the identifier up as primary key first, then as the
// email column.
func (b *Backend) findLoginUser(r *http.Request, rc resource.Descriptor, id string) (crud.Record, error) {
	key, err := rc.ParseKey(id)
	if err == nil {
		user, err := b.engine.GetOne(r.Context(), rc, key)
		if err == nil || !errors.Is(err, crud.ErrNotFound) {
			return user, err
		}
	}
	if !rc.KnowsColumn("user_email") {
		return nil, crud.ErrNotFound
	}
	page, err := b.engine.GetAll(r.Context(), rc, query.Spec{
		Filters:  map[string]query.Filter{"user_email": query.Eq(id)},
		PageSize: 1,
	})
	if err != nil {
		return nil, err
	}
	if len(page.Records) == 0 {
		return nil, crud.ErrNotFound
	}
	return page.Records[0], nil
}
