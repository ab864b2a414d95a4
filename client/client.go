// Package client implements the self-test KMS client used for manual and
// automated smoke-testing of a running server: it performs a real
// Bind/Request round trip and validates the response envelope the same
// way a genuine Windows or Office client would.
package client

import (
	"fmt"
	"log"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/rodaine/table"

	"github.com/relaykms/kmsgate/catalog"
	"github.com/relaykms/kmsgate/codec"
	"github.com/relaykms/kmsgate/kmsmsg"
	"github.com/relaykms/kmsgate/rpc"
)

// Config holds the options the `client` CLI subcommand exposes.
type Config struct {
	IP      string
	Port    int
	Mode    string // catalog SKU display name, or "list"
	Version uint16 // 4, 5, or 6 — chooses the envelope, independent of the catalog
	CMID    string
	Machine string
}

func DefaultConfig() *Config {
	return &Config{
		IP:      "127.0.0.1",
		Port:    1688,
		Mode:    "Windows 11 Professional",
		Version: 6,
	}
}

// Run resolves cfg.Mode against the compiled-in catalog, performs the
// Bind/Request dance over a TCP connection to cfg.IP:cfg.Port, and
// validates the returned envelope.
func Run(cfg *Config) error {
	cat, err := catalog.Load()
	if err != nil {
		return fmt.Errorf("client: load catalog: %w", err)
	}

	if cfg.Mode == "list" {
		printCatalog(cat)
		return nil
	}

	sku, group, ok := findSKU(cat, cfg.Mode)
	if !ok {
		return fmt.Errorf("client: unknown mode %q (try -mode list)", cfg.Mode)
	}

	log.Printf("Connecting to %s:%d", cfg.IP, cfg.Port)
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", cfg.IP, cfg.Port), 10*time.Second)
	if err != nil {
		return fmt.Errorf("client: dial: %w", err)
	}
	defer conn.Close()
	log.Printf("connected")

	resp, err := RoundTrip(conn, cfg, sku, group)
	if err != nil {
		return err
	}
	printResponse(resp)
	return nil
}

// RoundTrip performs one Bind + activation Request/Response exchange over
// conn and returns the validated, decoded response. It is exported so
// integration tests can drive it against an in-process net.Pipe or
// listener without going through Run's flag parsing.
func RoundTrip(conn net.Conn, cfg *Config, sku catalog.SKU, group catalog.ApplicationGroup) (*kmsmsg.Response, error) {
	callID := uint32(1)
	if _, err := conn.Write(rpc.BuildBindRequest(callID)); err != nil {
		return nil, fmt.Errorf("client: send bind: %w", err)
	}
	ackHeader, _, err := rpc.RecvOne(conn)
	if err != nil {
		return nil, fmt.Errorf("client: read bind ack: %w", err)
	}
	if ackHeader.Type != rpc.PacketTypeBindAck {
		return nil, fmt.Errorf("client: expected BindAck, got PDU type 0x%02x", ackHeader.Type)
	}

	cmid := codec.RandomUUID()
	if cfg.CMID != "" {
		u, err := codec.UUIDFromString(cfg.CMID)
		if err != nil {
			return nil, fmt.Errorf("client: -cmid: %w", err)
		}
		cmid = u
	}
	machine := cfg.Machine
	if machine == "" {
		machine = randomMachineName()
	}

	req := &kmsmsg.ClientRequest{
		LicenseStatus:       2, // grace period
		RequiredClientCount: uint32(group.MinClients),
		ApplicationGroup:    group.UUID,
		ActivationID:        sku.UUID,
		KeyManagementID:     codec.RandomUUID(),
		ClientMachineID:     cmid,
		RequestTime:         uint64(codec.TimeToFileTime(time.Now().UTC())),
		MachineName:         machine,
	}

	stub, err := kmsmsg.EncodeClientRequestWire(cfg.Version, 0, req)
	if err != nil {
		return nil, fmt.Errorf("client: build request: %w", err)
	}
	callID++
	if _, err := conn.Write(rpc.BuildRPCRequest(stub, callID)); err != nil {
		return nil, fmt.Errorf("client: send request: %w", err)
	}

	respHeader, respBody, err := rpc.RecvOne(conn)
	if err != nil {
		return nil, fmt.Errorf("client: read response: %w", err)
	}
	if respHeader.Type == rpc.PacketTypeFault {
		return nil, fmt.Errorf("client: server returned a FAULT PDU")
	}
	if respHeader.Type != rpc.PacketTypeResponse {
		return nil, fmt.Errorf("client: expected Response, got PDU type 0x%02x", respHeader.Type)
	}

	resp, err := kmsmsg.DecodeResponseWire(respBody)
	if err != nil {
		return nil, fmt.Errorf("client: decode response: %w", err)
	}
	if resp.ClientMachineID != req.ClientMachineID {
		return nil, fmt.Errorf("client: response echoed ClientMachineID %s, want %s", resp.ClientMachineID, req.ClientMachineID)
	}
	if resp.ResponseTime != req.RequestTime {
		return nil, fmt.Errorf("client: response echoed RequestTime %d, want %d", resp.ResponseTime, req.RequestTime)
	}
	return resp, nil
}

func findSKU(cat *catalog.Catalog, mode string) (catalog.SKU, catalog.ApplicationGroup, bool) {
	for _, s := range cat.SKUs() {
		if strings.EqualFold(s.DisplayName, mode) {
			g, ok := cat.Group(s.GroupUUID)
			return s, g, ok
		}
	}
	return catalog.SKU{}, catalog.ApplicationGroup{}, false
}

func printCatalog(cat *catalog.Catalog) {
	tbl := table.New("SKU", "Application Group", "Min Clients")
	for _, s := range cat.SKUs() {
		g, _ := cat.Group(s.GroupUUID)
		tbl.AddRow(s.DisplayName, g.DisplayName, g.MinClients)
	}
	tbl.Print()
}

func printResponse(resp *kmsmsg.Response) {
	log.Printf("=== KMS Response ===")
	log.Printf("  EPID: %s", resp.KMSEPID)
	log.Printf("  Client Machine ID: %s", resp.ClientMachineID)
	log.Printf("  Response Time: %s", codec.FileTimeToTime(int64(resp.ResponseTime)).Format(time.RFC3339))
	log.Printf("  Activated Machines: %d", resp.ActivatedMachines)
	log.Printf("  Activation Interval: %d minutes", resp.ActivationInterval)
	log.Printf("  Renewal Interval: %d minutes", resp.RenewalInterval)
}

func randomMachineName() string {
	const chars = "abcdefghijklmnopqrstuvwxyz0123456789"
	name := make([]byte, 8+rand.Intn(8))
	for i := range name {
		name[i] = chars[rand.Intn(len(chars))]
	}
	return strings.ToUpper(string(name))
}
