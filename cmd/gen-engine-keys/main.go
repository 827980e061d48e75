package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/ecies"
)

// Generates a fresh engine keypair. The private key goes to the engine
// config (engine.privateKey or ENGINE_PRIVATE_KEY); the public key is what
// clients fetch from /api/orders/engine-key to encrypt reveals.
func main() {
	outFile := flag.String("out", "", "write private key hex to this file instead of stdout")
	flag.Parse()

	priv, err := ethcrypto.GenerateKey()
	if err != nil {
		log.Fatalf("Failed to generate key: %v", err)
	}

	privHex := hex.EncodeToString(ethcrypto.FromECDSA(priv))
	eciesPub := ecies.ImportECDSAPublic(&priv.PublicKey)
	pubHex := "0x" + hex.EncodeToString(ethcrypto.FromECDSAPub(eciesPub.ExportECDSA()))

	fmt.Println("🔑 Engine keypair generated")
	fmt.Printf("Public key:  %s\n", pubHex)

	if *outFile != "" {
		if err := os.WriteFile(*outFile, []byte(privHex+"\n"), 0o600); err != nil {
			log.Fatalf("Failed to write key file: %v", err)
		}
		fmt.Printf("Private key written to %s\n", *outFile)
		return
	}
	fmt.Printf("Private key: %s\n", privHex)
	fmt.Println("⚠️ Store the private key securely; anyone holding it can decrypt order reveals")
}
