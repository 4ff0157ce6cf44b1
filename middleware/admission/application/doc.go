// Package application contém os casos de uso do controle de admissão.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Evaluator.Check(identity, category) retorna uma Decision (allow/deny +
// cota restante + reset); StatusService lê sem consumir cota; Monitor espalha
// eventos agregados para os sinks de telemetria.
package application
