// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - MemoryCounterStore / RedisCounterStore: contador de janela fixa (em processo ou Redis)
//   - MemoryAggregator: estatísticas de segurança em baldes de tempo
//   - RedisStatsStore / AsyncSink: persistência assíncrona das estatísticas
//   - Metrics: métricas Prometheus
//   - LogThrottle: limita volume de logs repetidos usando golang.org/x/time/rate
package infra
