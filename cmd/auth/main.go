// Package main provides the Spotify refresh-token helper for tunebox.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/tunebox/internal/infra/logger"
	"github.com/osa030/tunebox/internal/infra/spotify"
)

var (
	app          = kingpin.New("tunebox-auth", "Obtain a Spotify refresh token for tunebox")
	clientID     = app.Flag("client-id", "Spotify Client ID").Envar("SPOTIFY_CLIENT_ID").Required().String()
	clientSecret = app.Flag("client-secret", "Spotify Client Secret").Envar("SPOTIFY_CLIENT_SECRET").Required().String()
	port         = app.Flag("port", "Callback server port").Default("8888").Int()
	wait         = app.Flag("wait", "How long to wait for the browser callback").Default("5m").Duration()
	envFile      = app.Flag("env-file", "Write SPOTIFY_REFRESH_TOKEN into this .env file").String()
)

// authResult is delivered by the callback handler.
type authResult struct {
	token *oauth2.Token
	err   error
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	if _, err := logger.Init(logger.Config{Output: "stderr", Level: "info"}); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	redirectURI := fmt.Sprintf("http://127.0.0.1:%d/callback", *port)
	auth := spotifyauth.New(
		spotifyauth.WithRedirectURL(redirectURI),
		spotifyauth.WithClientID(*clientID),
		spotifyauth.WithClientSecret(*clientSecret),
		spotifyauth.WithScopes(spotify.Scopes...),
	)
	state := uuid.NewString()
	results := make(chan authResult, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", callbackHandler(auth, state, results))
	server := &http.Server{Addr: fmt.Sprintf(":%d", *port), Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			results <- authResult{err: fmt.Errorf("failed to start callback server: %w", err)}
		}
	}()

	fmt.Println("Please visit the following URL to authorize tunebox:")
	fmt.Println("")
	fmt.Println(auth.AuthURL(state))
	fmt.Println("")
	fmt.Println("Waiting for authorization...")

	var res authResult
	select {
	case res = <-results:
	case <-time.After(*wait):
		res.err = fmt.Errorf("no callback received within %s", *wait)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		zlog.Warn().Msgf("Failed to shutdown callback server: %v", err)
	}

	if res.err != nil {
		zlog.Error().Msgf("Authorization failed: %v", res.err)
		os.Exit(1)
	}
	refresh := res.token.RefreshToken

	fmt.Println("")
	fmt.Println("=== Authorization Successful ===")
	fmt.Println("")
	fmt.Println("Refresh Token:")
	fmt.Println(refresh)
	fmt.Println("")

	if *envFile != "" {
		if err := writeEnv(*envFile, refresh); err != nil {
			zlog.Error().Msgf("Failed to update %s: %v", *envFile, err)
			os.Exit(1)
		}
		fmt.Printf("Saved SPOTIFY_REFRESH_TOKEN to %s\n", *envFile)
		return
	}

	fmt.Println("Add this to your tunebox.yaml:")
	fmt.Println("")
	fmt.Println("spotify:")
	fmt.Printf("  refresh_token: \"%s\"\n", refresh)
	fmt.Println("")
	fmt.Println("Or set as environment variable:")
	fmt.Printf("export SPOTIFY_REFRESH_TOKEN=\"%s\"\n", refresh)
}

// writeEnv sets SPOTIFY_REFRESH_TOKEN in path, keeping the other entries.
func writeEnv(path, refresh string) error {
	env := map[string]string{}
	if _, err := os.Stat(path); err == nil {
		existing, err := godotenv.Read(path)
		if err != nil {
			return err
		}
		env = existing
	}
	env["SPOTIFY_REFRESH_TOKEN"] = refresh
	return godotenv.Write(env, path)
}

func callbackHandler(auth *spotifyauth.Authenticator, state string, results chan<- authResult) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if st := r.FormValue("state"); st != state {
			http.Error(w, "State mismatch", http.StatusForbidden)
			zlog.Warn().Msgf("State mismatch: got=%s", st)
			return
		}

		token, err := auth.Token(r.Context(), state, r)
		if err != nil {
			http.Error(w, "Failed to get token", http.StatusForbidden)
			zlog.Warn().Msgf("Failed to get token: %v", err)
			return
		}

		fmt.Fprint(w, completePage)

		select {
		case results <- authResult{token: token}:
		default:
		}
	}
}

const completePage = `<!DOCTYPE html>
<html>
<head>
    <title>tunebox - Authorization Complete</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            display: flex;
            justify-content: center;
            align-items: center;
            height: 100vh;
            margin: 0;
            background: #121212;
            color: white;
        }
        .container {
            text-align: center;
            padding: 40px;
            background: rgba(255, 255, 255, 0.06);
            border-radius: 16px;
        }
        h1 { margin-bottom: 20px; }
        p { opacity: 0.8; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Authorization Complete</h1>
        <p>tunebox has a refresh token. You can close this window.</p>
    </div>
</body>
</html>
`
