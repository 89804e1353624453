// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisStore / MemoryStore: contadores de janela + block list (INCR, EXPIRE, SADD...)
//   - SQLiteStore / MemoryLogStore: log de requisições e alertas
//   - Hub: broadcast não bloqueante para o feed ao vivo
//   - BucketStore: token bucket por chave com golang.org/x/time/rate (throttle do admin)
//   - ChanPool: semáforo simples para limite de concorrência
//   - RedisStatsStore / MemoryStatsStore: contadores de decisão do gate
package infra
