package main

import (
	"signup-middleware/auth"
	"signup-middleware/config"
	"signup-middleware/drafts"
	"signup-middleware/erp"
	"signup-middleware/helpers"
	"signup-middleware/payments"
	"signup-middleware/progress"
	"signup-middleware/ratelimit"
	"signup-middleware/routes"
	"signup-middleware/session"
	"signup-middleware/store"
	"signup-middleware/verification"

	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/FusionAuth/go-client/pkg/fusionauth"
	"github.com/gin-gonic/gin"
	cv "github.com/nirasan/go-oauth-pkce-code-verifier"
	"github.com/redis/go-redis/v9"
	"github.com/thanhpk/randstr"
	"golang.org/x/oauth2"
)

func main() {
	conf, err := config.LoadConfigYaml()
	if err != nil {
		log.Fatalf("failed to load config: %v", err.Error())
	}

	backends := map[string]*verification.Client{}
	erps := map[string]*erp.Client{}

	for i, app := range conf.Applications {
		// initialize oauth state
		conf.Applications[i].OauthStr = randstr.Hex(16)

		// initialize the code verifier for pkce
		codeVerif, err := cv.CreateCodeVerifier()
		if err != nil {
			log.Fatalf("failed to initialize code verifier: %v", err.Error())
		}
		conf.Applications[i].CodeVerif = codeVerif.String()

		// Create code_challenge with S256 method
		conf.Applications[i].CodeChallenge = codeVerif.CodeChallengeS256()

		faURL, err := url.Parse(app.FusionAuthHost)
		if err != nil {
			log.Fatalf("failed to parse fusionauth url: %v", err.Error())
		}

		// http client with custom options for usage with fusionauth
		hc := &http.Client{
			Timeout: time.Second * time.Duration(conf.Global.AuthTimeoutSeconds),
		}

		// get the fusionauth client
		conf.Applications[i].FusionAuthClient = fusionauth.NewClient(
			hc,
			faURL,
			app.FusionAuthAPIKey,
		)

		// build out the oauth2 config
		conf.Applications[i].OauthConfig = &oauth2.Config{
			RedirectURL:  auth.GetOauthRedirectURL(app),
			ClientID:     app.FusionAuthOauthClientID,
			ClientSecret: app.FusionAuthOauthClientSecret,
			Scopes:       []string{"openid"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   fmt.Sprintf("%v/oauth2/authorize", app.FusionAuthPublicHost),
				TokenURL:  fmt.Sprintf("%v/oauth2/token", app.FusionAuthPublicHost),
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		}

		conf.Applications[i].AuthCodeURL = conf.Applications[i].OauthConfig.AuthCodeURL(
			conf.Applications[i].OauthStr,
			oauth2.SetAuthURLParam("response_type", "code"),
			oauth2.SetAuthURLParam("code_challenge", conf.Applications[i].CodeChallenge),
			oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		)

		// per-app outbound clients
		backends[app.FusionAuthAppID] = verification.NewClient(
			app.BackendFnBaseURL,
			time.Second*time.Duration(conf.Global.BackendFnTimeoutSeconds),
		)
		erps[app.FusionAuthAppID] = erp.NewClient(
			app.ERPBaseURL,
			app.ERPAPIKey,
			time.Second*time.Duration(conf.Global.ERPTimeoutSeconds),
		)
	}

	// storage: postgres for durable state, redis for session-scoped state
	ctx := context.Background()
	pool, err := store.ConnectPostgres(
		ctx,
		conf.Global.Postgres.User,
		conf.Global.Postgres.Pass,
		conf.Global.Postgres.Host,
		conf.Global.Postgres.Port,
		conf.Global.Postgres.DBName,
		conf.Global.Postgres.Options,
	)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err.Error())
	}
	defer pool.Close()

	durable := store.NewPostgresBackend(pool)
	err = durable.EnsureSchema(ctx)
	if err != nil {
		log.Fatalf("failed to ensure schema: %v", err.Error())
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Global.Redis.Addr,
		Password: conf.Global.Redis.Password,
		DB:       conf.Global.Redis.DB,
	})
	ephemeral := store.NewRedisBackend(
		rdb,
		time.Second*time.Duration(conf.Global.Redis.SessionTTLSeconds),
	)

	st := store.New(durable, ephemeral)
	progressState := progress.NewState(st)
	verifState := verification.NewState(st)
	draftStore := drafts.NewStore(st)

	// session contexts share one backend mirror; per-request calls pick the
	// app-specific client from the handler maps
	var mirror *verification.Client
	if len(conf.Applications) > 0 {
		mirror = backends[conf.Applications[0].FusionAuthAppID]
	}
	sessions := session.NewManager(progressState, verifState, draftStore, mirror)

	h := &routes.Handler{
		Conf:     conf,
		Store:    st,
		Sessions: sessions,
		Verif:    verifState,
		Drafts:   draftStore,
		Limiter:  ratelimit.New(conf.Global.VerificationRatePerMin, conf.Global.VerificationBurst),
		Backends: backends,
		ERPs:     erps,
	}

	// start up the api server
	r := gin.Default()

	// withApp resolves the app config from the request origin and sets the
	// CORS headers before running the handler
	withApp := func(fn func(c *gin.Context, app config.App)) gin.HandlerFunc {
		return func(c *gin.Context) {
			app, ok := routes.GetConfigViaRouteOrigin(c, conf)
			if !ok {
				helpers.Simple404(c)
				return
			}
			fn(c, app)
		}
	}
	preflightWith := func(setMethods func(c *gin.Context)) gin.HandlerFunc {
		return func(c *gin.Context) {
			_, ok := routes.GetConfigViaRouteOrigin(c, conf)
			if !ok {
				helpers.Simple404(c)
				return
			}
			setMethods(c)
			helpers.Simple200OK(c)
		}
	}
	preflight := preflightWith(helpers.SetCORSMethods)
	preflightGet := preflightWith(helpers.SetCORSMethodsGet)
	preflightGetPut := preflightWith(helpers.SetCORSMethodsGetPut)

	r.GET("/ping", func(c *gin.Context) {
		_, ok := routes.GetConfigViaRouteOrigin(c, conf)
		if !ok {
			helpers.Simple404(c)
			return
		}
		c.JSON(200, gin.H{"message": "pong"})
	})

	r.OPTIONS("/api/route-decision", preflightGet)
	r.GET("/api/route-decision", withApp(h.RouteDecision))

	r.OPTIONS("/api/verification/create", preflight)
	r.POST("/api/verification/create", withApp(h.CreateVerification))
	r.OPTIONS("/api/verification/verify", preflight)
	r.POST("/api/verification/verify", withApp(h.VerifyCode))

	r.OPTIONS("/api/signup/advance", preflight)
	r.POST("/api/signup/advance", withApp(h.AdvanceStep))
	r.OPTIONS("/api/signup/submit", preflight)
	r.POST("/api/signup/submit", withApp(h.SubmitSummary))
	r.OPTIONS("/api/signup/fresh", preflight)
	r.POST("/api/signup/fresh", withApp(h.FreshSignup))

	r.OPTIONS("/api/drafts/:step", preflightGetPut)
	r.GET("/api/drafts/:step", withApp(h.GetDraft))
	r.PUT("/api/drafts/:step", withApp(h.PutDraft))

	r.OPTIONS("/auth/password-login", preflight)
	r.POST("/auth/password-login", withApp(h.PasswordLogin))

	r.OPTIONS("/auth/signout", preflight)
	r.POST("/auth/signout", withApp(h.SignOut))

	r.OPTIONS("/auth/loggedin", preflightGet)
	r.GET("/auth/loggedin", withApp(routes.LoggedIn))

	r.OPTIONS("/auth/login", preflightGet)
	r.GET("/auth/login", func(c *gin.Context) {
		app, ok := routes.GetConfigViaRouteOrigin(c, conf)
		if !ok {
			helpers.Simple404(c)
			return
		}
		// check if the user is already logged in
		jwt := routes.GetJWTFromGin(c, app)
		if jwt != "" {
			user, err := auth.GetUserByJWT(app, jwt)
			if err == nil && user.Id != "" {
				c.Data(200, "text/plain", []byte("already logged in"))
				return
			}
		}
		// user is not logged in, so redirect
		c.Redirect(301, app.AuthCodeURL)
	})

	r.GET("/auth/oauth-cb/:appId", func(c *gin.Context) {
		appID := c.Params.ByName("appId")
		if appID == "" {
			helpers.Simple404(c)
			return
		}
		app, ok := conf.GetConfigForAppID(appID)
		if !ok {
			helpers.Simple404(c)
			return
		}
		h.OauthCallback(c, app)
	})

	r.OPTIONS("/api/member/invoices", preflightGet)
	r.GET("/api/member/invoices", withApp(h.Invoices))
	r.OPTIONS("/api/member/payments", preflightGet)
	r.GET("/api/member/payments", withApp(h.Payments))
	r.OPTIONS("/api/member/autopay", preflightGet)
	r.GET("/api/member/autopay", withApp(h.Autopay))

	r.OPTIONS("/api/create-checkout-session", preflight)
	r.POST("/api/create-checkout-session", withApp(func(c *gin.Context, app config.App) {
		user, err := routes.GetUserFromGin(c, app) // will set the gin response if there's an error
		if err != nil {
			return
		}
		err = payments.CreateCheckoutSession(c, app) // will set the gin response unless there's an error
		if err != nil {
			log.Printf("failed to create checkout session for user %v: %v", user.Id, err.Error())
			helpers.Simple500(c)
			return
		}
	}))

	r.OPTIONS("/api/substatus", preflightGet)
	r.GET("/api/substatus", withApp(func(c *gin.Context, app config.App) {
		user, err := routes.GetUserFromGin(c, app) // will set the gin response if there's an error
		if err != nil {
			return
		}
		productID := c.Query("p")
		if productID == "" {
			c.Data(400, "text/plain", []byte("invalid p value"))
			return
		}
		subscribed, err := payments.IsUserSubscribed(c.Request.Context(), app, st, user, productID)
		if err != nil {
			log.Printf(
				"failed to check app id %v if user id %v is subscribed to product ID %v: %v",
				app.FusionAuthAppID,
				user.Id,
				productID,
				err.Error(),
			)
			helpers.Simple500(c)
			return
		}
		c.Data(200, "text/plain", []byte(fmt.Sprintf("%v", subscribed)))
	}))

	r.OPTIONS("/api/products", preflightGet)
	r.GET("/api/products", withApp(func(c *gin.Context, app config.App) {
		products, err := payments.GetProducts(app)
		if err != nil {
			log.Printf("/api/products failure: %v", err.Error())
			helpers.Simple500(c)
			return
		}
		c.JSON(200, products)
	}))

	r.OPTIONS("/api/mutate", preflight)
	r.POST("/api/mutate", withApp(h.PostMutation))

	err = r.Run(
		fmt.Sprintf(
			"%v:%v",
			conf.Global.BindAddr,
			conf.Global.BindPort,
		),
	)
	if err != nil {
		log.Fatalf("error running gin: %v", err.Error())
	}
}
