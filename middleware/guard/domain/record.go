package domain

import (
	"math"
	"time"
)

// RequestLogRecord é imutável: criado uma única vez, depois da resposta enviada.
type RequestLogRecord struct {
	ID             string      `json:"id"`
	Timestamp      time.Time   `json:"timestamp"`
	ClientIP       string      `json:"clientIp"`
	ClientID       string      `json:"clientId"`
	Endpoint       string      `json:"endpoint"`
	Method         string      `json:"method"`
	StatusCode     int         `json:"statusCode"`
	ResponseTimeMs float64     `json:"responseTimeMs"`
	APIToken       string      `json:"apiToken,omitempty"`
	UserAgent      string      `json:"userAgent"`
	AuthStatus     AuthOutcome `json:"authStatus"`
}

// Ref resolve a referência do cliente (identidade ou IP legado).
func (r RequestLogRecord) Ref() ClientRef { return RefFor(r.ClientID, r.ClientIP) }

// LatencyMillis converte uma duração monotônica em ms com duas casas.
func LatencyMillis(d time.Duration) float64 {
	ms := float64(d) / float64(time.Millisecond)
	return math.Round(ms*100) / 100
}

// LogFilter descreve uma consulta ao log store. Campos zero não filtram.
type LogFilter struct {
	Since       time.Time
	Until       time.Time
	Endpoint    string
	ClientID    string
	StatusCodes []int
	// Newest inverte a ordem (mais recentes primeiro); padrão é ordem cronológica.
	Newest bool
	Limit  int
	Offset int
}

// LogStats agrega os contadores exibidos no painel.
type LogStats struct {
	TotalHits       int64   `json:"totalHits"`
	SuccessRate     float64 `json:"successRate"`
	FailedRequests  int64   `json:"failedRequests"`
	AvgResponseTime float64 `json:"avgResponseTime"`
}

// NewLogStats aplica os arredondamentos do painel: taxa de sucesso com uma casa,
// latência média inteira.
func NewLogStats(total, success, failed int64, avgLatency float64) LogStats {
	st := LogStats{TotalHits: total, FailedRequests: failed}
	if total > 0 {
		st.SuccessRate = math.Round(float64(success)/float64(total)*1000) / 10
		st.AvgResponseTime = math.Round(avgLatency)
	}
	return st
}
