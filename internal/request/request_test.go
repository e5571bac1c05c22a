package request

import (
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
)

func TestToJsonReq(t *testing.T) {
	payload := map[string]string{"event": "work_item.completed"}
	buf, err := ToJsonReq(payload)
	assert.NoError(t, err)
	assert.JSONEq(t, `{"event":"work_item.completed"}`, buf.String())
}

func TestCall(t *testing.T) {
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://hooks.example.com/meterline",
		httpmock.NewStringResponder(200, `{"ok": true}`))

	body, err := ToJsonReq(map[string]string{"hello": "world"})
	assert.NoError(t, err)

	req, err := http.NewRequest("POST", "https://hooks.example.com/meterline", body)
	assert.NoError(t, err)

	var response map[string]interface{}
	resp, err := Call(req, &response)
	assert.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, true, response["ok"])
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
}
