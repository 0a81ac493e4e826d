package endpoints

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/prebid/adstxt-validator/errortypes"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		glog.Errorf("Failed to marshal response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: errortypes.ReadKey(err), Message: err.Error()})
}

// queryFlag reads a boolean query parameter. A present parameter without a value counts as true.
func queryFlag(r *http.Request, name string) bool {
	values, ok := r.URL.Query()[name]
	if !ok {
		return false
	}
	if len(values) == 0 || values[0] == "" {
		return true
	}
	b, err := strconv.ParseBool(values[0])
	return err == nil && b
}

// queryList splits a comma separated query parameter, dropping empty items.
func queryList(r *http.Request, name string) []string {
	var items []string
	for _, v := range r.URL.Query()[name] {
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
	}
	return items
}
