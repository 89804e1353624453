// Package application contém os casos de uso do guard: o gate de admissão
// (credencial, block list, janela de rate limit), o log sink, o motor de detecção
// e os serviços de throttle/concorrência.
//
// Ele depende do pacote domain (e das métricas) e não conhece net/http.
// Ex.: Gate.Evaluate(ctx, req) retorna uma Decision com o resultado de autorização.
package application
