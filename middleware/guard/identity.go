package guard

import (
	"net"
	"net/http"
	"strings"

	"sentinela-gateway/middleware/guard/domain"
)

// DefaultCredentialHeaders: X-API-Key, com Authorization como alternativa.
var DefaultCredentialHeaders = []string{"X-API-Key", "Authorization"}

// Credential devolve o primeiro header de credencial não vazio.
func Credential(r *http.Request, headers ...string) string {
	if len(headers) == 0 {
		headers = DefaultCredentialHeaders
	}
	for _, h := range headers {
		if v := strings.TrimSpace(r.Header.Get(h)); v != "" {
			return v
		}
	}
	return ""
}

// ClientIP: primeiro hop do X-Forwarded-For; senão o host do RemoteAddr.
func ClientIP(r *http.Request) string {
	return domain.ResolveClientIP(r.Header.Get("X-Forwarded-For"), peerHost(r.RemoteAddr))
}

// ResolveIdentity devolve a identidade canônica da requisição.
func ResolveIdentity(r *http.Request, credentialHeaders ...string) domain.ClientIdentity {
	return domain.ResolveIdentity(
		Credential(r, credentialHeaders...),
		r.Header.Get("X-Forwarded-For"),
		peerHost(r.RemoteAddr),
	)
}

func peerHost(remoteAddr string) string {
	remoteAddr = strings.TrimSpace(remoteAddr)
	host, _, err := net.SplitHostPort(remoteAddr)
	if err == nil {
		return host
	}
	return remoteAddr
}
