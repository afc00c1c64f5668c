// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package discovery anuncia e localiza peers Flux via mDNS.
package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/tallowteam/flux/internal/fluxerr"
	"github.com/tallowteam/flux/internal/wire"
)

// ServiceType é o tipo de serviço mDNS do Flux.
const ServiceType = "_flux._tcp"

// Domain é o domínio mDNS padrão.
const Domain = "local."

// DefaultPort é a porta TCP padrão do receiver.
const DefaultPort = 9741

// browseWindow é a janela de browse curta usada na resolução de @name.
const browseWindow = 3 * time.Second

// Advertiser mantém o anúncio mDNS do receiver ativo.
type Advertiser struct {
	server *zeroconf.Server
}

// Advertise registra o serviço com a propriedade TXT de versão.
// O anúncio permanece ativo até Shutdown.
func Advertise(deviceName string, port int) (*Advertiser, error) {
	txt := []string{fmt.Sprintf("version=%d", wire.ProtocolVersion)}
	server, err := zeroconf.Register(deviceName, ServiceType, Domain, port, txt, nil)
	if err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindDiscovery, "registering mDNS service", err)
	}
	return &Advertiser{server: server}, nil
}

// Shutdown encerra o anúncio.
func (a *Advertiser) Shutdown() {
	a.server.Shutdown()
}

// Peer é um peer descoberto na rede.
type Peer struct {
	Name string
	Addr string // host:port
}

// ResolveName faz um browse curto e retorna o primeiro peer cujo nome
// casa com o prefixo (case-insensitive). Primeira vitória encerra o
// browse.
func ResolveName(ctx context.Context, name string) (*Peer, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindDiscovery, "creating mDNS resolver", err)
	}

	browseCtx, cancel := context.WithTimeout(ctx, browseWindow)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 8)
	if err := resolver.Browse(browseCtx, ServiceType, Domain, entries); err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindDiscovery, "browsing for peers", err)
	}

	prefix := strings.ToLower(name)
	for {
		select {
		case <-browseCtx.Done():
			return nil, fluxerr.Newf(fluxerr.KindDiscovery,
				"no peer matching %q found on the network", name)
		case entry, ok := <-entries:
			if !ok {
				return nil, fluxerr.Newf(fluxerr.KindDiscovery,
					"no peer matching %q found on the network", name)
			}
			if entry == nil {
				continue
			}
			if !strings.HasPrefix(strings.ToLower(entry.Instance), prefix) {
				continue
			}
			addr := pickAddr(entry)
			if addr == "" {
				continue
			}
			return &Peer{
				Name: entry.Instance,
				Addr: net.JoinHostPort(addr, fmt.Sprintf("%d", entry.Port)),
			}, nil
		}
	}
}

// List retorna todos os peers vistos dentro da janela informada.
func List(ctx context.Context, window time.Duration) ([]Peer, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindDiscovery, "creating mDNS resolver", err)
	}

	browseCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 16)
	if err := resolver.Browse(browseCtx, ServiceType, Domain, entries); err != nil {
		return nil, fluxerr.Wrap(fluxerr.KindDiscovery, "browsing for peers", err)
	}

	var peers []Peer
	for entry := range entries {
		if entry == nil {
			continue
		}
		addr := pickAddr(entry)
		if addr == "" {
			continue
		}
		peers = append(peers, Peer{
			Name: entry.Instance,
			Addr: net.JoinHostPort(addr, fmt.Sprintf("%d", entry.Port)),
		})
	}
	return peers, nil
}

// pickAddr escolhe o primeiro endereço utilizável da entrada.
func pickAddr(entry *zeroconf.ServiceEntry) string {
	if len(entry.AddrIPv4) > 0 {
		return entry.AddrIPv4[0].String()
	}
	if len(entry.AddrIPv6) > 0 {
		return entry.AddrIPv6[0].String()
	}
	if entry.HostName != "" {
		return strings.TrimSuffix(entry.HostName, ".")
	}
	return ""
}
