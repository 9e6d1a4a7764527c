/*
Copyright 2026 The SAMFMS Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"github.com/samfms/scf/internal/config"
	"github.com/samfms/scf/pkg/broker"
	"github.com/samfms/scf/pkg/eventbus"
	"github.com/samfms/scf/pkg/rpc"
	"github.com/samfms/scf/pkg/traffic"
)

// declareTopology declares everything this process needs on the broker
// before it starts consuming or publishing: the shared RPC
// request/response exchanges and this service's request queue (C2), and
// the topic exchanges this service produces events on (C3/C12/C14).
func declareTopology(ch *broker.Channel, rpcServer *rpc.Server, bus *eventbus.Bus, cfg config.Config) error {
	if err := rpcServer.Topology(ch); err != nil {
		return err
	}
	if err := bus.DeclareTopicExchange(ch, traffic.TripEventsExchange); err != nil {
		return err
	}
	if err := bus.DeclareTopicExchange(ch, eventbus.MaintenanceEventsExchange); err != nil {
		return err
	}
	return nil
}
