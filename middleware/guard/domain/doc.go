// Package domain define contratos e tipos de domínio do guard: identidade do cliente,
// registros de log, alertas, resultados de autorização e as portas dos stores.
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// de detalhes de infraestrutura (Redis, SQLite, websocket).
package domain
