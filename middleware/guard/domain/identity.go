package domain

import "strings"

type IdentityKind string

const (
	KindToken IdentityKind = "token"
	KindIP    IdentityKind = "ip"
)

const (
	loopbackIPv6 = "::1"
	loopbackIPv4 = "127.0.0.1"
	unknownIP    = "unknown"
)

// ClientIdentity é a identidade canônica de um cliente: Token(valor) ou Ip(valor).
// A forma canônica ("token:<v>" / "ip:<v>") é a única chave usada em contadores,
// block list e alertas.
type ClientIdentity struct {
	Kind  IdentityKind
	Value string
}

func TokenIdentity(token string) ClientIdentity {
	return ClientIdentity{Kind: KindToken, Value: token}
}

func IPIdentity(ip string) ClientIdentity {
	return ClientIdentity{Kind: KindIP, Value: NormalizeIP(ip)}
}

func (id ClientIdentity) String() string {
	return string(id.Kind) + ":" + id.Value
}

func (id ClientIdentity) IsZero() bool { return id.Kind == "" && id.Value == "" }

// ParseIdentity interpreta uma forma canônica. Valores sem prefixo conhecido
// (entradas legadas) retornam ok=false.
func ParseIdentity(s string) (ClientIdentity, bool) {
	kind, value, found := strings.Cut(s, ":")
	if !found || value == "" {
		return ClientIdentity{}, false
	}
	switch IdentityKind(kind) {
	case KindToken:
		return TokenIdentity(value), true
	case KindIP:
		return IPIdentity(value), true
	}
	return ClientIdentity{}, false
}

// NormalizeIP converte o loopback IPv6 no literal IPv4 e troca vazio por "unknown".
func NormalizeIP(ip string) string {
	ip = strings.TrimSpace(ip)
	switch ip {
	case "":
		return unknownIP
	case loopbackIPv6:
		return loopbackIPv4
	}
	return ip
}

// FirstForwardedHop retorna o primeiro IP de um X-Forwarded-For (cliente original).
func FirstForwardedHop(xff string) string {
	first, _, _ := strings.Cut(xff, ",")
	return strings.TrimSpace(first)
}

// ResolveClientIP escolhe o IP de origem: primeiro hop do X-Forwarded-For,
// senão o endereço do peer (já sem porta).
func ResolveClientIP(forwardedFor, peerHost string) string {
	if hop := FirstForwardedHop(forwardedFor); hop != "" {
		return NormalizeIP(hop)
	}
	return NormalizeIP(peerHost)
}

// ResolveIdentity é pura: mesmos argumentos, mesma identidade.
// Credencial tem prioridade sobre a origem de rede.
func ResolveIdentity(credential, forwardedFor, peerHost string) ClientIdentity {
	if c := strings.TrimSpace(credential); c != "" {
		return TokenIdentity(c)
	}
	return IPIdentity(ResolveClientIP(forwardedFor, peerHost))
}

// ClientRef referencia o cliente de um registro de log. Registros antigos não têm
// identidade gravada, só o IP; por isso a referência é um tipo soma explícito.
type ClientRef interface {
	Canonical() string
	clientRef()
}

// IdentityRef é uma identidade canônica já gravada no registro.
type IdentityRef string

// LegacyIPRef é o IP cru de registros sem identidade.
type LegacyIPRef string

func (r IdentityRef) Canonical() string { return string(r) }
func (IdentityRef) clientRef()          {}

func (r LegacyIPRef) Canonical() string { return IPIdentity(string(r)).String() }
func (LegacyIPRef) clientRef()          {}

// RefFor monta a referência a partir das colunas de um registro.
func RefFor(clientID, clientIP string) ClientRef {
	if strings.TrimSpace(clientID) != "" {
		return IdentityRef(clientID)
	}
	return LegacyIPRef(clientIP)
}

// BlockCandidates lista as formas que precisam ser consultadas na block list
// para um pedido: canônicas e cruas (legado), sem repetição.
func BlockCandidates(ip, token string) []string {
	out := make([]string, 0, 4)
	seen := make(map[string]struct{}, 4)
	add := func(v string) {
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if ip != "" {
		ip = NormalizeIP(ip)
		add(IPIdentity(ip).String())
		add(ip)
	}
	if token = strings.TrimSpace(token); token != "" {
		add(TokenIdentity(token).String())
		add(token)
	}
	return out
}
