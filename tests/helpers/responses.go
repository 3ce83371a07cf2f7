package helpers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorResponse checks the status of the response, and that the body
// is a well formed API error carrying the expected message and code. An
// empty expectedMessage matches the status text of the expected status.
func AssertErrorResponse(t *testing.T, response Response, expectedStatusCode int, expectedMessage string, expectedErrorCode string) {
	assert.Equal(t, expectedStatusCode, response.StatusCode(), "HTTPResponse status code did not match expected")

	apiErr := ExtractErrorResponse(t, response.Body)
	if expectedMessage == "" {
		assert.Equal(t, http.StatusText(expectedStatusCode), apiErr["error"])
	} else {
		assert.Equal(t, expectedMessage, apiErr["error"])
	}
	if expectedErrorCode != "" {
		assert.Equal(t, expectedErrorCode, apiErr["code"])
	}

	// Only the message and code may be exposed
	assert.Len(t, apiErr, 2, "error response contained unexpected fields: %v", apiErr)
}

func ExtractErrorResponse(t *testing.T, body []byte) map[string]any {
	var apiErr map[string]any
	require.NoError(t, json.Unmarshal(body, &apiErr), "error response body %q is not valid JSON", string(body))

	return apiErr
}
