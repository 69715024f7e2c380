// Package server implements the HTTP control plane: batch submission,
// progress and worker-status polling, retry and continuation requests,
// and upload-folder management. It is a thin façade — every handler
// either reads a snapshot or hands work to the registry/dispatcher and
// returns; no batch state lives in the handlers themselves.
package server
