// Package mqtt wraps paho.mqtt.golang for Conduit's signal transport.
//
// A Session is one connection to the broker shared by every MQTT-backed
// signal in the device tree. It handles authentication, TLS, Last Will
// and Testament, automatic reconnection with subscription restoration,
// and panic-safe message handlers. Backend adapts a single topic pair on
// a Session into the endpoint contract leaf signals connect through.
//
// Topic layout:
//
//	conduit/{site}/stat/{device}/{field}   retained state, published by devices
//	conduit/{site}/cmnd/{device}/{field}   commands to devices
//	conduit/{site}/system/status           session online/offline (LWT)
package mqtt
