// Package auth contains the authentication system.
package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bluenviron/rtmpcast/internal/conf"
)

const (
	// PauseAfterError is the pause to apply after an authentication failure.
	PauseAfterError = 2 * time.Second

	jwtRefreshPeriod = 60 * 60 * time.Second
)

// Action is an action that requires authentication.
type Action string

// actions.
const (
	ActionConnect Action = "connect"
	ActionPublish Action = "publish"
	ActionRead    Action = "read"
)

// Permission allows an action on the streams matching Stream.
// An empty Stream matches every stream; a Stream starting with "~" is a regular expression.
type Permission struct {
	Action Action `json:"action"`
	Stream string `json:"stream"`
}

// Request is an authentication request.
type Request struct {
	Action Action
	Stream string
	Query  url.Values
}

// Error is an authentication error.
type Error struct {
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return "authentication failed: " + e.Wrapped.Error()
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

func matchesPermission(perms []Permission, req *Request) bool {
	for _, perm := range perms {
		if perm.Action != req.Action {
			continue
		}

		switch {
		case perm.Stream == "":
			return true

		case strings.HasPrefix(perm.Stream, "~"):
			re, err := regexp.Compile(perm.Stream[1:])
			if err == nil && re.MatchString(req.Stream) {
				return true
			}

		case perm.Stream == req.Stream:
			return true
		}
	}

	return false
}

func checkCredentials(query url.Values, user conf.Credential, pass conf.Credential) bool {
	if user.IsEmpty() {
		return true
	}
	return user.Check(query.Get("user")) && pass.Check(query.Get("pass"))
}

type customClaims struct {
	jwt.RegisteredClaims
	permissionsKey string
	permissions    []Permission
}

func (c *customClaims) UnmarshalJSON(b []byte) error {
	err := json.Unmarshal(b, &c.RegisteredClaims)
	if err != nil {
		return err
	}

	var claimMap map[string]json.RawMessage
	err = json.Unmarshal(b, &claimMap)
	if err != nil {
		return err
	}

	rawPermissions, ok := claimMap[c.permissionsKey]
	if !ok {
		return fmt.Errorf("claim '%s' not found inside JWT", c.permissionsKey)
	}

	// permissions can be encoded as a JSON string
	var str string
	if json.Unmarshal(rawPermissions, &str) == nil {
		rawPermissions = json.RawMessage(str)
	}

	return json.Unmarshal(rawPermissions, &c.permissions)
}

// Manager is the authentication manager.
// When JWTJWKS is set, requests are authenticated with a JWT passed in the "jwt" query parameter;
// otherwise with the "user" and "pass" query parameters.
type Manager struct {
	PublishUser conf.Credential
	PublishPass conf.Credential
	ReadUser    conf.Credential
	ReadPass    conf.Credential
	JWTJWKS     string
	JWTClaimKey string
	ReadTimeout time.Duration

	mutex          sync.Mutex
	jwtHTTPClient  *http.Client
	jwtLastRefresh time.Time
	jwtKeyFunc     keyfunc.Keyfunc
}

// Authenticate authenticates a request.
func (m *Manager) Authenticate(req *Request) error {
	var err error

	if m.JWTJWKS != "" {
		err = m.authenticateJWT(req)
	} else {
		err = m.authenticateCredentials(req)
	}

	if err != nil {
		return &Error{Wrapped: err}
	}

	return nil
}

func (m *Manager) authenticateCredentials(req *Request) error {
	switch req.Action {
	case ActionConnect:
		// credentials in the application name must match one of the roles
		if !req.Query.Has("user") ||
			checkCredentials(req.Query, m.PublishUser, m.PublishPass) ||
			checkCredentials(req.Query, m.ReadUser, m.ReadPass) {
			return nil
		}

	case ActionPublish:
		if checkCredentials(req.Query, m.PublishUser, m.PublishPass) {
			return nil
		}

	default:
		if checkCredentials(req.Query, m.ReadUser, m.ReadPass) {
			return nil
		}
	}

	return fmt.Errorf("invalid credentials")
}

func (m *Manager) authenticateJWT(req *Request) error {
	tokens := req.Query["jwt"]

	if len(tokens) == 0 {
		if req.Action == ActionConnect {
			return nil
		}
		return fmt.Errorf("JWT not provided")
	}

	if len(tokens) != 1 {
		return fmt.Errorf("multiple JWTs provided")
	}

	keyfunc, err := m.pullJWTJWKS()
	if err != nil {
		return err
	}

	var cc customClaims
	cc.permissionsKey = m.JWTClaimKey
	_, err = jwt.ParseWithClaims(tokens[0], &cc, keyfunc)
	if err != nil {
		return err
	}

	if req.Action == ActionConnect {
		return nil
	}

	if !matchesPermission(cc.permissions, req) {
		return fmt.Errorf("user doesn't have permission to perform action")
	}

	return nil
}

// RefreshJWTJWKS forces the next JWT authentication to download the key set again.
func (m *Manager) RefreshJWTJWKS() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.jwtLastRefresh = time.Time{}
}

func (m *Manager) pullJWTJWKS() (jwt.Keyfunc, error) {
	now := time.Now()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if now.Sub(m.jwtLastRefresh) >= jwtRefreshPeriod {
		if m.jwtHTTPClient == nil {
			m.jwtHTTPClient = &http.Client{
				Timeout:   m.ReadTimeout,
				Transport: &http.Transport{},
			}
		}

		res, err := m.jwtHTTPClient.Get(m.JWTJWKS)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()

		if res.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("JWKS server replied with code %d", res.StatusCode)
		}

		var raw json.RawMessage
		err = json.NewDecoder(res.Body).Decode(&raw)
		if err != nil {
			return nil, err
		}

		tmp, err := keyfunc.NewJWKSetJSON(raw)
		if err != nil {
			return nil, err
		}

		m.jwtKeyFunc = tmp
		m.jwtLastRefresh = now
	}

	return m.jwtKeyFunc.Keyfunc, nil
}
