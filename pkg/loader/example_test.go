package loader_test

import (
	"encoding/json"
	"fmt"

	"github.com/picatz/joseloader/pkg/jwa"
	"github.com/picatz/joseloader/pkg/jwk"
	"github.com/picatz/joseloader/pkg/loader"
)

const (
	exampleJWS = "eyJhbGciOiJIUzI1NiIsImtpZCI6ImV4YW1wbGUifQ.SGVsbG8sIEpPU0Uh.8EYbkKzHhGWZFmd8oQSrV4JHM67A-E_qpOz2XY9u4XI"

	// https://datatracker.ietf.org/doc/html/rfc7516#appendix-A.3
	exampleJWE = "eyJhbGciOiJBMTI4S1ciLCJlbmMiOiJBMTI4Q0JDLUhTMjU2In0." +
		"6KB707dM9YTIgHtLvtgWQ8mKwboJW3of9locizkDTHzBC2IlrT1oOQ." +
		"AxY8DCtDaGlsbGljb3RoZQ." +
		"KDlTtXchhZTGufMYmOYGS4HffxPSUrfmqCHXaI9wOGY." +
		"U0m_YmjN04DJvceFICbCVQ"
)

func ExampleNormalize() {
	token, err := loader.Normalize(`{"payload":"SGVsbG8sIEpPU0Uh","protected":"eyJhbGciOiJIUzI1NiJ9","signature":"c2ln"}`)
	if err != nil {
		panic(fmt.Sprintf("failed to normalize token: %v", err))
	}

	b, err := json.Marshal(token)
	if err != nil {
		panic(fmt.Sprintf("failed to encode token: %v", err))
	}

	fmt.Println(token.Kind())
	fmt.Println(string(b))
	// Output:
	// JWS
	// {"payload":"SGVsbG8sIEpPU0Uh","signatures":[{"protected":"eyJhbGciOiJIUzI1NiJ9","signature":"c2ln"}]}
}

func ExampleLoader_LoadAndVerify() {
	l, err := loader.New()
	if err != nil {
		panic(fmt.Sprintf("failed to create loader: %v", err))
	}

	keys := jwk.NewSet(jwk.Value{
		jwk.KeyType: jwk.KeyTypeOct,
		jwk.KeyID:   "example",
		jwk.K:       "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY",
	})

	_, result, err := l.LoadAndVerify([]byte(exampleJWS), keys, jwa.NewAllowedAlgorithms(jwa.HS256))
	if err != nil {
		panic(fmt.Sprintf("failed to verify token: %v", err))
	}

	fmt.Println(result.Index, string(result.Payload))
	// Output: 0 Hello, JOSE!
}

func ExampleLoader_LoadAndDecrypt() {
	l, err := loader.New()
	if err != nil {
		panic(fmt.Sprintf("failed to create loader: %v", err))
	}

	keys := jwk.NewSet(jwk.Value{
		jwk.KeyType: jwk.KeyTypeOct,
		jwk.K:       "GawgguFyGrWKav7AX4VKUg",
	})

	_, result, err := l.LoadAndDecrypt(
		[]byte(exampleJWE),
		keys,
		jwa.NewAllowedAlgorithms(jwa.A128KW),
		jwa.NewAllowedAlgorithms(jwa.A128CBCHS256),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to decrypt token: %v", err))
	}

	fmt.Println(string(result.Plaintext))
	// Output: Live long and prosper.
}
