// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"time"

	"github.com/nodaldb/nodal-go-driver/address"
	"github.com/nodaldb/nodal-go-driver/bson"
	"github.com/nodaldb/nodal-go-driver/bson/bsoncore"
	"github.com/nodaldb/nodal-go-driver/description"
)

// buildHelloCommand assembles the hello (née isMaster) handshake command.
func buildHelloCommand(appName string, compressors []string, loadBalanced bool) bsoncore.Document {
	b := bsoncore.NewDocumentBuilder().AppendInt32("hello", 1)
	if appName != "" {
		client := bsoncore.NewDocumentBuilder().
			AppendDocument("application", bsoncore.NewDocumentBuilder().AppendString("name", appName).Build()).
			AppendDocument("driver", bsoncore.NewDocumentBuilder().
				AppendString("name", "nodal-go-driver").
				AppendString("version", "1.0.0").Build())
		b.AppendDocument("client", client.Build())
	}
	if len(compressors) > 0 {
		ab := bsoncore.NewArrayBuilder()
		for _, c := range compressors {
			ab.AppendString(c)
		}
		b.AppendArray("compression", ab.Build())
	}
	if loadBalanced {
		b.AppendBoolean("loadBalanced", true)
	}
	return b.Build()
}

// parseHelloReply translates a hello reply document into a ServerDescription.
func parseHelloReply(addr address.Address, reply bsoncore.Document, rtt time.Duration, rttSet bool) description.Server {
	desc := description.Server{
		Addr:           addr,
		Kind:           description.Standalone,
		LastUpdateTime: time.Now(),
	}
	if rttSet {
		desc = desc.SetAverageRTT(rtt)
	}

	if v, err := reply.LookupErr("ok"); err == nil {
		if ok, numOK := v.AsInt64(); numOK && ok != 1 {
			desc.Kind = description.Unknown
			return desc
		}
	}

	isReplicaSetMember := false
	if v, err := reply.LookupErr("setName"); err == nil {
		desc.SetName, _ = v.StringValueOK()
		isReplicaSetMember = true
	}
	if v, err := reply.LookupErr("setVersion"); err == nil {
		if n, ok := v.AsInt64(); ok {
			desc.SetVersion = uint32(n)
		}
	}
	if v, err := reply.LookupErr("electionId"); err == nil {
		desc.ElectionID = bson.ObjectID(v.ObjectID())
		desc.HasElectionID = true
	}

	isWritablePrimary := false
	if v, err := reply.LookupErr("isWritablePrimary"); err == nil {
		isWritablePrimary, _ = v.BooleanOK()
	} else if v, err := reply.LookupErr("ismaster"); err == nil {
		isWritablePrimary, _ = v.BooleanOK()
	}
	isSecondary := false
	if v, err := reply.LookupErr("secondary"); err == nil {
		isSecondary, _ = v.BooleanOK()
	}
	isArbiter := false
	if v, err := reply.LookupErr("arbiterOnly"); err == nil {
		isArbiter, _ = v.BooleanOK()
	}
	isHidden := false
	if v, err := reply.LookupErr("hidden"); err == nil {
		isHidden, _ = v.BooleanOK()
	}

	isMongos := false
	if v, err := reply.LookupErr("msg"); err == nil {
		isMongos = mustString(v) == "isdbgrid"
	}

	switch {
	case isMongos:
		desc.Kind = description.Mongos
	case isReplicaSetMember && isWritablePrimary:
		desc.Kind = description.RSPrimary
	case isReplicaSetMember && isSecondary:
		desc.Kind = description.RSSecondary
	case isReplicaSetMember && isArbiter:
		desc.Kind = description.RSArbiter
	case isReplicaSetMember && isHidden:
		desc.Kind = description.RSOther
	case isReplicaSetMember:
		desc.Kind = description.RSOther
	default:
		desc.Kind = description.Standalone
	}

	if v, err := reply.LookupErr("primary"); err == nil {
		if s, ok := v.StringValueOK(); ok {
			desc.Primary = address.Address(s)
		}
	}
	desc.Members = readAddressArray(reply, "hosts")
	desc.Members = append(desc.Members, readAddressArray(reply, "passives")...)
	desc.Members = append(desc.Members, readAddressArray(reply, "arbiters")...)

	if v, err := reply.LookupErr("tags"); err == nil {
		if doc, ok := v.DocumentOK(); ok {
			desc.Tags = make(map[string]string)
			elems, _ := doc.Elements()
			for _, e := range elems {
				if s, ok := e.Value().StringValueOK(); ok {
					desc.Tags[e.Key()] = s
				}
			}
		}
	}

	minWire, maxWire := int32(0), int32(0)
	if v, err := reply.LookupErr("minWireVersion"); err == nil {
		minWire = int32(v.Int32())
	}
	if v, err := reply.LookupErr("maxWireVersion"); err == nil {
		maxWire = int32(v.Int32())
	}
	desc.WireVersion = &description.VersionRange{Min: minWire, Max: maxWire}

	if v, err := reply.LookupErr("maxBsonObjectSize"); err == nil {
		desc.MaxDocumentSize = uint32(v.Int32())
	}
	if v, err := reply.LookupErr("maxMessageSizeBytes"); err == nil {
		desc.MaxMessageSize = uint32(v.Int32())
	}
	if v, err := reply.LookupErr("maxWriteBatchSize"); err == nil {
		desc.MaxWriteBatchSize = uint32(v.Int32())
	}
	if v, err := reply.LookupErr("logicalSessionTimeoutMinutes"); err == nil {
		if n, ok := v.AsInt64(); ok {
			desc.SessionTimeoutMinutes = &n
		}
	}
	if v, err := reply.LookupErr("topologyVersion"); err == nil {
		if doc, ok := v.DocumentOK(); ok {
			tv := &description.TopologyVersion{}
			if pv, err := doc.LookupErr("processId"); err == nil {
				tv.ProcessID = bson.ObjectID(pv.ObjectID())
			}
			if cv, err := doc.LookupErr("counter"); err == nil {
				if n, ok := cv.AsInt64(); ok {
					tv.Counter = n
				}
			}
			desc.TopologyVersion = tv
		}
	}
	if v, err := reply.LookupErr("compression"); err == nil {
		if arr, ok := v.ArrayOK(); ok {
			vals, _ := arr.Values()
			for _, cv := range vals {
				if s, ok := cv.StringValueOK(); ok {
					desc.Compression = append(desc.Compression, s)
				}
			}
		}
	}
	if v, err := reply.LookupErr("serviceId"); err == nil {
		id := bson.ObjectID(v.ObjectID())
		desc.ServiceID = &id
	}
	if v, err := reply.LookupErr("$clusterTime"); err == nil {
		if doc, ok := v.DocumentOK(); ok {
			wrapper := bsoncore.NewDocumentBuilder().AppendDocument("$clusterTime", doc).Build()
			desc = desc.WithClusterTime(bson.Raw(wrapper))
		}
	}

	return desc
}

func mustString(v bsoncore.Value) string {
	s, _ := v.StringValueOK()
	return s
}

func readAddressArray(doc bsoncore.Document, key string) []address.Address {
	v, err := doc.LookupErr(key)
	if err != nil {
		return nil
	}
	arr, ok := v.ArrayOK()
	if !ok {
		return nil
	}
	vals, _ := arr.Values()
	out := make([]address.Address, 0, len(vals))
	for _, val := range vals {
		if s, ok := val.StringValueOK(); ok {
			out = append(out, address.Address(s).Canonicalize())
		}
	}
	return out
}
