// Package workerhttp exposes the command set over POST/GET /api/worker.
package workerhttp

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"signalrelay/internal/command"
	"signalrelay/internal/logger"
	"signalrelay/internal/pkg/errs"
	"signalrelay/internal/store"

	"github.com/gin-gonic/gin"
)

const maxBodyBytes = 1 << 20

// Observer records request latency per action.
type Observer interface {
	ObserveHTTP(action string, code int, seconds float64)
}

type Router struct {
	handler  command.Handler
	keySum   [sha256.Size]byte
	hasKey   bool
	observer Observer
}

func NewRouter(h command.Handler, apiKey string, observer Observer) *Router {
	r := &Router{handler: h, observer: observer}
	if key := strings.TrimSpace(apiKey); key != "" {
		r.keySum = sha256.Sum256([]byte(key))
		r.hasKey = true
	}
	return r
}

func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	w := group.Group("/worker", r.authenticate)
	w.POST("", r.handlePost)
	w.GET("", r.handleGet)
}

type envelope struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// authenticate accepts "Authorization: Bearer <key>" or "X-Worker-Key: <key>".
// Digests are compared so neither content nor length leaks through timing.
func (r *Router) authenticate(c *gin.Context) {
	presented := strings.TrimSpace(c.GetHeader("X-Worker-Key"))
	if auth := strings.TrimSpace(c.GetHeader("Authorization")); presented == "" && auth != "" {
		if scheme, token, found := strings.Cut(auth, " "); found && strings.EqualFold(scheme, "Bearer") {
			presented = strings.TrimSpace(token)
		}
	}
	sum := sha256.Sum256([]byte(presented))
	if !r.hasKey || presented == "" || subtle.ConstantTimeCompare(sum[:], r.keySum[:]) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
		return
	}
	c.Next()
}

func (r *Router) handlePost(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	var env envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		r.fail(c, "", time.Now(), errs.New(errs.CodeInvalid, errs.WithMessage("body must be {\"action\", \"data\"}"), errs.WithCause(err)))
		return
	}
	r.serve(c, env.Action, env.Data)
}

// handleGet serves read actions; every query parameter other than action
// becomes a data field, numeric values as numbers.
func (r *Router) handleGet(c *gin.Context) {
	start := time.Now()
	action := c.Query("action")
	if command.Known(command.Action(action)) && !command.ReadOnly(command.Action(action)) {
		r.fail(c, action, start, errs.New(errs.CodeInvalid, errs.WithField("action"),
			errs.WithMessage("action "+strconv.Quote(action)+" requires POST")))
		return
	}
	data := map[string]any{}
	for key, values := range c.Request.URL.Query() {
		if key == "action" || len(values) == 0 {
			continue
		}
		if n, err := strconv.ParseInt(values[0], 10, 64); err == nil {
			data[key] = n
			continue
		}
		data[key] = values[0]
	}
	raw, err := json.Marshal(data)
	if err != nil {
		r.fail(c, action, start, err)
		return
	}
	r.serve(c, action, raw)
}

func (r *Router) serve(c *gin.Context, action string, data json.RawMessage) {
	start := time.Now()
	cmd, err := command.Decode(action, data)
	if err != nil {
		r.fail(c, action, start, err)
		return
	}
	reply, err := command.Dispatch(c.Request.Context(), r.handler, cmd)
	if err != nil {
		r.fail(c, action, start, err)
		return
	}
	c.JSON(http.StatusOK, reply)
	r.observe(action, http.StatusOK, start)
}

func (r *Router) fail(c *gin.Context, action string, start time.Time, err error) {
	code, body := errorResponse(err)
	if code == http.StatusInternalServerError {
		logger.Errorf("worker api %s: %v", action, err)
	} else {
		logger.Debugf("worker api %s: %v", action, err)
	}
	c.JSON(code, body)
	r.observe(action, code, start)
}

func (r *Router) observe(action string, code int, start time.Time) {
	if r.observer == nil {
		return
	}
	// Unknown names stay out of the label set.
	if !command.Known(command.Action(action)) {
		action = "unknown"
	}
	r.observer.ObserveHTTP(action, code, time.Since(start).Seconds())
}

// errorResponse maps an error onto a status code and a body. Unclassified
// errors are 500 and carry their message.
func errorResponse(err error) (int, gin.H) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, gin.H{"success": false, "error": "not found"}
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict, gin.H{"success": false, "error": "invalid state transition"}
	}
	var e *errs.E
	if errors.As(err, &e) {
		switch e.Code {
		case errs.CodeInvalid:
			return http.StatusBadRequest, gin.H{"success": false, "error": e.Public()}
		case errs.CodeUnauthorized:
			return http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"}
		case errs.CodeNotFound:
			return http.StatusNotFound, gin.H{"success": false, "error": e.Public()}
		case errs.CodeConflict:
			return http.StatusConflict, gin.H{"success": false, "error": e.Public()}
		}
	}
	return http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()}
}
