// Package workerpool implements the Worker Pool (C2): one logical
// worker per enabled upstream server, each with a capacity and a health
// state derived from recent outcomes.
//
// The cooldown/circuit-breaker policy and the PickEligible preference
// order are ported from simple_load_balancer.py's select_best_server and
// server_cooldown_until handling (see original_source/), generalized
// into a reusable, mutex-guarded pool.
package workerpool
