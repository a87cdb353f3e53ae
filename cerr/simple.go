package cerr

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Rendered is the wire shape produced by Format: a status code, a content
// type, and the raw bytes to send. Plain-text kinds (413, 400) never touch
// the JSON path. The other taxonomy kinds Format lists are JSON built from
// a fixed message rather than their Go-style Error() text, except that
// InvalidRoutePattern appends its Reason and GuestFault carries the guest's
// message in "details".
type Rendered struct {
	Status      int
	ContentType string
	Body        []byte
}

func jsonRendered(status int, fields map[string]any) Rendered {
	body, err := json.Marshal(fields)
	if err != nil {
		return Rendered{Status: http.StatusInternalServerError, ContentType: "text/plain", Body: []byte("Internal Server Error")}
	}
	return Rendered{Status: status, ContentType: "application/json", Body: body}
}

func textRendered(status int, text string) Rendered {
	return Rendered{Status: status, ContentType: "text/plain", Body: []byte(text)}
}

// Format renders err into its wire representation. The taxonomy kinds
// listed in the switch get a literal body; any other error, including Bind
// and IOError, falls back to a JSON envelope carrying its Error() text, with
// the status from ErrorType if it implements it and 500 otherwise.
func Format(err error) Rendered {
	switch e := err.(type) {
	case *RouteNotFound:
		return jsonRendered(404, map[string]any{"error": "Not Found"})

	case *PayloadTooLarge:
		return textRendered(413, "Payload Too Large")

	case *HTTPError:
		return textRendered(400, "Bad Request")

	case *InvalidRoutePattern:
		return jsonRendered(500, map[string]any{"error": "Server misconfigured: " + e.Reason})

	case *AuthMissing:
		return jsonRendered(401, map[string]any{"error": "Missing or invalid Authorization header"})

	case *AuthInvalid:
		return jsonRendered(401, map[string]any{"error": "Unauthorized"})

	case *AuthMisconfigured:
		return jsonRendered(500, map[string]any{"error": "Server misconfigured: Auth required but no secret set"})

	case *GuestFault:
		return jsonRendered(500, map[string]any{"error": "Internal Server Error", "details": e.Message})
	}

	status := http.StatusInternalServerError
	var typed ErrorType
	if errors.As(err, &typed) {
		status = typed.HTTPStatus()
	}
	return jsonRendered(status, map[string]any{"error": err.Error()})
}
