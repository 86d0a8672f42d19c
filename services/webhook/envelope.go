package webhook

import (
	"encoding/json"
	"net/http"
)

// Envelope renders a Result in the shape each gateway expects. It returns the
// HTTP status, content type and body.
func Envelope(provider string, res Result) (int, string, []byte) {
	switch provider {
	case ProviderAlipay:
		// alipay retries until it sees the literal text "success"
		if res.Success {
			return http.StatusOK, "text/plain; charset=utf-8", []byte("success")
		}
		return http.StatusOK, "text/plain; charset=utf-8", []byte("fail")

	case ProviderWechat:
		if res.Success {
			return http.StatusOK, "application/json", mustJSON(map[string]string{"code": "SUCCESS", "message": res.Message})
		}
		return http.StatusInternalServerError, "application/json", mustJSON(map[string]string{"code": "FAIL", "message": res.Message})

	case ProviderStripe:
		if res.Success {
			return http.StatusOK, "application/json", mustJSON(map[string]bool{"received": true})
		}
		return http.StatusBadRequest, "application/json", mustJSON(map[string]any{"received": false, "error": res.Message})
	}

	if res.Success {
		return http.StatusOK, "application/json", mustJSON(map[string]string{"status": "success", "message": res.Message})
	}
	return http.StatusBadRequest, "application/json", mustJSON(map[string]string{"status": "error", "message": res.Message})
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
