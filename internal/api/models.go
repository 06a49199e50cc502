package api

import "encoding/json"

// Wire shapes shared by the auth endpoints. The issued credential travels
// under the single canonical name access_token on every endpoint that
// returns one.

type refreshResponse struct {
	AccessToken string `json:"access_token"`
}

// errorBody covers both error shapes the backend emits: a structured
// {"error":{"code","message"}} object and a flat {"message"} object.
type errorBody struct {
	Error   *errorDetail `json:"error"`
	Message string       `json:"message"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func parseErrorBody(status int, body []byte) *Error {
	e := &Error{Status: status}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if eb.Error != nil {
			e.Code = eb.Error.Code
			e.Message = eb.Error.Message
		} else {
			e.Message = eb.Message
		}
	}
	return e
}
