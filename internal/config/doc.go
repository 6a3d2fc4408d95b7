// Package config provides configuration parsing for jj projects.
//
// The configuration is stored in jj.yaml (or jj.yml, or jj.json) at the
// project root. This package handles loading, saving and validating it, and
// turning it into a server.ServerConfig.
//
// # Configuration File Structure
//
//	name: chat
//	server:
//	  address: ":8080"
//	  socketPath: /_jj/socket
//	  idleTimeout: 35s
//	  suspendTimeout: 30s
//	hosts:
//	  - name: chat
//	    script: hosts/chat.js
//	static:
//	  dir: public
//	storage:
//	  backend: sql
//	  driver: postgres
//	  dsn: postgres://localhost/jj
//	  ttl: 24h
//	tracing:
//	  endpoint: localhost:4317
//	  insecure: true
//	metrics:
//	  path: /metrics
//	log:
//	  level: info
//	  format: text
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Address:", cfg.Server.Address)
package config
