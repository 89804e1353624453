// Package guard fornece os adapters HTTP (net/http) do gateway: identificação do
// cliente, gate de admissão, log de requisições, throttle e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: identidade, resultados, registros, alertas e contratos de store
//   - application: gate, log sink, motor de detecção (sem net/http)
//   - infra: Redis, SQLite, memória, hub do feed ao vivo, token bucket, semáforo
//   - guard (este pacote): middlewares + tradução de decisões para status/headers/JSON
//
// Ordem no gateway:
//
//  1. RequestLogger marca o início (relógio monotônico) e guarda o RequestMeta no ctx
//  2. Gate resolve a identidade, decide e grava identidade/resultado no RequestMeta
//  3. Se permitido, segue para o upstream (reverse proxy)
//  4. Depois da resposta, RequestLogger monta o registro e entrega ao LogSink
package guard
