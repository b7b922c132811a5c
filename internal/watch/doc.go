// Package watch drives panmk's continuous mode. It polls the source
// document's modification signature, wakes early on filesystem
// notifications, rebuilds when the signature changes, and keeps the viewer
// pointed at the latest output until it is interrupted.
package watch
