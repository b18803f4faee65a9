package aws

import (
	"net/http"

	"github.com/gorilla/mux"
)

const tokenTTLHeader = "X-Aws-Ec2-Metadata-Token-Ttl-Seconds"

// NewMetadataEmulator serves the subset of the instance metadata service the
// training job reads, so the job can run off-instance
func NewMetadataEmulator(identity InstanceIdentity) http.Handler {
	values := map[string]string{
		MetadataPublicHostname: identity.PublicHostname,
		MetadataInstanceID:     identity.InstanceID,
	}

	r := mux.NewRouter()
	r.HandleFunc("/latest/api/token", func(w http.ResponseWriter, r *http.Request) {
		ttl := r.Header.Get(tokenTTLHeader)
		if ttl == "" {
			ttl = "21600"
		}
		w.Header().Set(tokenTTLHeader, ttl)
		w.Write([]byte("emulated-token"))
	}).Methods(http.MethodPut)

	r.HandleFunc("/latest/meta-data/{key}", func(w http.ResponseWriter, r *http.Request) {
		value, ok := values[mux.Vars(r)["key"]]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(value))
	}).Methods(http.MethodGet)

	return r
}
