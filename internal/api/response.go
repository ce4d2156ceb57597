package api

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/victornm/prizewheel/internal/errors"
)

// Envelope is the JSON shape of every response.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, Envelope{Success: true, Data: data})
}

func fail(c *gin.Context, err error) {
	e := errors.Convert(err)

	msg := e.Message
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
		msg = "internal error"
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), Envelope{Success: false, Error: msg, Reason: e.Reason})
}

func init() {
	// Report fields by their JSON names.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	}
}

// bind decodes the JSON body and turns binding failures into InvalidArgument errors.
func bind(c *gin.Context, v any) error {
	err := c.ShouldBindJSON(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid request body"),
			errors.WithCause(err))
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.ActualTag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("field %s is required", fe.Field()))
		case "min", "gt":
			msgs = append(msgs, fmt.Sprintf("field %s must be at least %s", fe.Field(), minParam(fe)))
		case "max":
			msgs = append(msgs, fmt.Sprintf("field %s must be at most %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("field %s is invalid", fe.Field()))
		}
	}

	return errors.New(errors.CodeInvalidArgument,
		errors.WithMessagef("%s", strings.Join(msgs, ", ")),
		errors.WithCause(err))
}

func minParam(fe validator.FieldError) string {
	if fe.ActualTag() == "gt" {
		n, err := strconv.Atoi(fe.Param())
		if err == nil {
			return strconv.Itoa(n + 1)
		}
	}
	return fe.Param()
}

func pathInt(c *gin.Context, name string) (int, error) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v <= 0 {
		return 0, errors.InvalidArgument("%s must be a positive number, got %q", name, c.Param(name))
	}
	return v, nil
}

func queryBool(c *gin.Context, name string) bool {
	v, _ := strconv.ParseBool(c.Query(name))
	return v
}

func queryInt(c *gin.Context, name string) (int, error) {
	s := c.Query(name)
	if s == "" {
		return 0, nil
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.InvalidArgument("%s must be a number, got %q", name, s)
	}
	return v, nil
}
