// Package companion maintains the on/off companion switches that
// mirror switch group buttons onto an MQTT broker.
//
// Every button in a group owns one companion switch. The group core
// only ever reads them: during a structural rebuild it adopts a switch
// found on, which is how activations made while the service was down
// survive a restart. Writing is this package's job. The Mirror hangs
// off the attribute publication fan-out and drives every switch to
// match each freshly published state, active on and the rest off.
//
// Two collections exist. Memory keeps switches as process-local
// booleans and backs tests and broker-less deployments. MQTT projects
// each switch onto a retained state topic
// (pbsg/switch/<group>/<button>/state) and accepts external writes on
// the matching set topic, so wall switches and dashboards wired to the
// broker can drive a group without touching the HTTP API.
package companion
