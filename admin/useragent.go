package admin

import (
	"strings"

	"github.com/mssola/useragent"
)

type clientInfo struct {
	Browser string `json:"browser"`
	Version string `json:"version,omitempty"`
	OS      string `json:"os"`
	Mobile  bool   `json:"mobile"`
	Bot     bool   `json:"bot"`
}

// describeUserAgent resume o User-Agent gravado no log para o painel.
func describeUserAgent(raw string) clientInfo {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "N/A" {
		return clientInfo{Browser: "unknown", OS: "unknown"}
	}

	ua := useragent.New(raw)
	browser, version := ua.Browser()
	info := clientInfo{
		Browser: strings.TrimSpace(browser),
		Version: version,
		OS:      strings.TrimSpace(ua.OS()),
		Mobile:  ua.Mobile(),
		Bot:     ua.Bot(),
	}
	if info.Browser == "" {
		info.Browser = "unknown"
	}
	if info.OS == "" {
		info.OS = "unknown"
	}
	return info
}
