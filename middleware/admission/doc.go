// Package admission fornece os adapters HTTP (net/http) do controle de admissão.
//
// Visão geral (camadas):
//
//   - domain: categorias, políticas, contrato do contador, decisões (sem net/http)
//   - application: casos de uso (Check/Admit, Status, Monitor) sem net/http
//   - infra: contador em memória/Redis, agregador, métricas, throttle de logs
//   - admission (este pacote): middleware + handlers HTTP, extração de
//     identidade/categoria e tradução da decisão para status/headers/JSON
//
// Fluxo no gateway:
//
//  1. Resolve a categoria da rota (CategoryFunc) e a identidade (KeyFunc)
//  2. Chama Evaluator.Admit para obter a decisão (falhas já convertidas)
//  3. Entrega a decisão ao Monitor (estatísticas agregadas, sem identidade crua)
//  4. Negado: 429 (cota), 503 (contador fora com fail closed / configuração), 400 (identidade)
//  5. Permitido: chama o próximo handler (ex: reverse proxy)
package admission
