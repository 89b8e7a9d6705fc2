package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/GoPolymarket/solvergate/internal/middleware"
	"github.com/GoPolymarket/solvergate/internal/model"
	"github.com/GoPolymarket/solvergate/internal/service"
	"github.com/GoPolymarket/solvergate/internal/signer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/joho/godotenv"
)

// signorder builds the request pieces a solver needs: a signed order body and
// the caller headers for an authenticated endpoint.
//
//	signorder -seq 0 -amount 1000 -commitment 0x.. -value 1000
//	signorder -headers -method POST -path /v1/withdrawals
//	signorder -headers -method PUT -path /v1/admin/hook -body hook.json
func main() {
	_ = godotenv.Load()

	key := flag.String("key", os.Getenv("SOLVER_PRIVATE_KEY"), "solver private key (hex)")
	chainID := flag.Int64("chain-id", envInt("CHAIN_CHAIN_ID", 1), "EIP-712 chain id")
	contract := flag.String("contract", os.Getenv("CHAIN_VERIFYING_CONTRACT"), "EIP-712 verifying contract")
	name := flag.String("domain-name", signer.DefaultDomainName, "EIP-712 domain name")
	version := flag.String("domain-version", signer.DefaultDomainVersion, "EIP-712 domain version")

	seq := flag.String("seq", "0", "order sequence")
	ttl := flag.Duration("ttl", 10*time.Minute, "order lifetime")
	amount := flag.String("amount", "0", "claimed amount in base units")
	value := flag.String("value", "", "attached value in base units (defaults to amount)")
	commitment := flag.String("commitment", "0x"+fmt.Sprintf("%064x", 0), "actions commitment (bytes32)")

	headers := flag.Bool("headers", false, "print caller auth headers instead of an order")
	method := flag.String("method", "POST", "request method for -headers")
	path := flag.String("path", "/v1/orders", "request path for -headers")
	bodyFile := flag.String("body", "", "file holding the exact request body for -headers (- for stdin)")
	flag.Parse()

	domain := signer.NewDomain(*name, *version, *chainID, common.HexToAddress(*contract))
	s, err := signer.NewSigner(*key, domain)
	if err != nil {
		log.Fatalf("signer: %v", err)
	}

	if *headers {
		body, err := readBody(*bodyFile)
		if err != nil {
			log.Fatalf("body: %v", err)
		}
		printJSON(callerHeaders(s, *method, *path, body, time.Now()))
		return
	}

	payload := model.OrderPayload{
		Signer:            s.Address().Hex(),
		Sequence:          *seq,
		Expiry:            strconv.FormatInt(time.Now().Add(*ttl).Unix(), 10),
		Amount:            *amount,
		ActionsCommitment: *commitment,
	}
	order, err := service.ParseOrder(payload)
	if err != nil {
		log.Fatalf("order: %v", err)
	}
	sig, err := s.SignOrderHex(order)
	if err != nil {
		log.Fatalf("sign: %v", err)
	}
	if *value == "" {
		*value = *amount
	}

	fmt.Fprintf(os.Stderr, "digest: %s\n", domain.HashOrder(order).Hex())
	printJSON(model.SubmitOrderRequest{Order: payload, Signature: sig, Value: *value})
}

// The body must be sent byte for byte as signed.
func callerHeaders(s *signer.Signer, method, path string, body []byte, now time.Time) map[string]string {
	ts := now.Unix()
	sig, err := s.SignPersonal([]byte(middleware.CallerMessage(method, path, ts, body)))
	if err != nil {
		log.Fatalf("sign headers: %v", err)
	}
	return map[string]string{
		middleware.HeaderCallerAddress:   s.Address().Hex(),
		middleware.HeaderCallerTimestamp: strconv.FormatInt(ts, 10),
		middleware.HeaderCallerSignature: hexutil.Encode(sig),
	}
}

func readBody(name string) ([]byte, error) {
	switch name {
	case "":
		return nil, nil
	case "-":
		return io.ReadAll(os.Stdin)
	default:
		return os.ReadFile(name)
	}
}

func envInt(key string, def int64) int64 {
	if v, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil {
		return v
	}
	return def
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatal(err)
	}
}
