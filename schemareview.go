package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/alexedwards/scs/v2/memstore"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/wansing/schemareview/backend"
	"github.com/wansing/schemareview/core"
	"github.com/wansing/schemareview/memdb"
	"github.com/wansing/schemareview/mongodb"
	"github.com/wansing/schemareview/sqldb"
	"github.com/wansing/schemareview/util"
	"github.com/xo/dburl"
	"golang.org/x/crypto/ssh/terminal"
)

const defaultDB = "sqlite3:schemareview.sqlite3?_busy_timeout=10000&_journal=WAL&_sync=NORMAL&_txlock=immediate"

func init() {
	log.SetFlags(0) // no log prefixes, on most systems systemd-journald adds them
}

func main() {

	var dbArg string     // is in both FlagSets
	var pagesArg string  // is in both FlagSets
	var configArg string // is in both FlagSets

	// default FlagSet

	// Your reverse proxy must not strip the prefix. So if you're using nginx, the "proxy_pass" value should not end with a slash.
	var base = flag.String("base", "", "strip off this `prefix` from every HTTP request")
	// MySQL: collation should be utf8mb4_unicode_ci
	flag.StringVar(&dbArg, "db", defaultDB, `sql database url, see github.com/xo/dburl, or "mem:" for a volatile in-memory database`)
	flag.StringVar(&pagesArg, "pages", "", "store pages in this mongodb `url` instead of the sql database")
	flag.StringVar(&configArg, "config", "config/schemareview.ini", "read policy and timeouts from this ini `file`, if it exists")
	var listenAddr = flag.String("listen", "127.0.0.1:8080", "serve HTTP content at this `ip:port`")

	// init FlagSet

	var initFlags = flag.NewFlagSet("init", flag.ExitOnError)

	initFlags.StringVar(&dbArg, "db", defaultDB, "sql database url, see github.com/xo/dburl") // copied from above
	initFlags.StringVar(&pagesArg, "pages", "", "store pages in this mongodb `url` instead of the sql database")
	initFlags.StringVar(&configArg, "config", "config/schemareview.ini", "read policy and timeouts from this ini `file`, if it exists")
	var initInsert = initFlags.Bool("insert", false, "creates the given client or user")
	var initPassword = initFlags.Bool("password", false, "sets the password of the given user")
	var initImport = initFlags.String("import", "", "imports pages from this yaml `file`")
	var clientArg = initFlags.String("client", "", "specifies a client: the `name` of a new client, or the id of the client of a new user")
	var domain = initFlags.String("domain", "", "specifies the domain `url` of a new client")
	var mail = initFlags.String("user", "", "specifies a user by `email`")
	var name = initFlags.String("name", "", "specifies the display `name` of a new user")
	var role = initFlags.String("role", string(core.ClientRole), "specifies the `role` of a new user: client or admin")

	if len(os.Args) > 1 && os.Args[1] == "init" {
		initFlags.Parse(os.Args[2:])
	} else {
		flag.Parse()
	}

	// config

	config, err := util.LoadConfig(configArg)
	if err != nil {
		log.Printf("could not load config: %v", err)
		return
	}

	// database

	db := &core.CoreDB{
		Policy: core.Policy{
			AdminReview: config.AdminReview,
		},
		StoreTimeout: config.StoreTimeout,
	}

	var sessionStore scs.Store

	if dbArg == "mem:" {
		log.Println("using volatile in-memory database")
		var mem = memdb.New()
		db.ClientDB = mem
		db.PageDB = mem
		db.UserDB = mem
		sessionStore = memstore.New()
	} else {
		dbURL, err := dburl.Parse(dbArg)
		if err != nil {
			log.Printf("could not parse database url: %v", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		sqlDB, err := sqldb.Open(ctx, dbURL)
		cancel()
		if err != nil {
			log.Println(err)
			return
		}

		log.Printf("using database %s", dbURL.Redacted())

		defer func() {
			log.Println("closing database")
			sqlDB.Close()
		}()

		if db.ClientDB, err = sqldb.NewClientDB(sqlDB); err != nil {
			log.Println(err)
			return
		}
		if db.PageDB, err = sqldb.NewPageDB(sqlDB); err != nil {
			log.Println(err)
			return
		}
		if db.UserDB, err = sqldb.NewUserDB(sqlDB); err != nil {
			log.Println(err)
			return
		}
		if sessionStore, err = sqlDB.NewSessionStore(); err != nil {
			log.Println(err)
			return
		}
	}

	if pagesArg != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		mongoDB, err := mongodb.Open(ctx, pagesArg)
		cancel()
		if err != nil {
			log.Println(err)
			return
		}

		log.Println("using mongodb for pages")

		defer func() {
			log.Println("closing mongodb")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			mongoDB.Close(ctx)
		}()

		db.PageDB = mongoDB
	}

	// init

	if initFlags.Parsed() {
		var ctx = context.Background()
		switch {
		case *initInsert && *mail != "":
			insertUser(ctx, db, *mail, *name, core.Role(*role), *clientArg)
		case *initInsert && *clientArg != "":
			insertClient(ctx, db, *clientArg, *domain)
		case *initPassword && *mail != "":
			setPassword(ctx, db, *mail)
		case *initImport != "":
			importPages(ctx, db, *initImport)
		default:
			initFlags.Usage()
		}
		return
	}

	// base

	*base = strings.Trim(*base, "/")
	if *base != "" {
		*base = "/" + *base
	}

	var sessionManager = scs.New()
	sessionManager.Store = sessionStore
	sessionManager.IdleTimeout = config.SessionIdleTimeout
	sessionManager.Lifetime = config.SessionLifetime
	sessionManager.Cookie.Path = *base + "/"
	sessionManager.Cookie.SameSite = http.SameSiteLaxMode
	sessionManager.Cookie.Secure = config.CookieSecure

	listen(db, sessionManager, *listenAddr, *base)
}

func insertClient(ctx context.Context, db *core.CoreDB, name, domain string) {
	var client = &core.Client{
		Name:   name,
		Domain: domain,
	}
	if err := db.InsertClient(ctx, client); err != nil {
		log.Printf(`error creating client "%s": %v`, name, err)
		return
	}
	log.Printf("created client %s with id %s", client.Name, client.ID)
}

func readPassword() ([]byte, error) {

	fmt.Printf("password: ")
	pass1, err := terminal.ReadPassword(0)
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("error reading password: %w", err)
	}

	fmt.Printf("repeat password: ")
	pass2, err := terminal.ReadPassword(0)
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("error reading password: %w", err)
	}

	if !bytes.Equal(pass1, pass2) {
		return nil, errors.New("passwords don't match")
	}

	return pass1, nil
}

func insertUser(ctx context.Context, db *core.CoreDB, mail, name string, role core.Role, clientID string) {

	fmt.Printf("new user %s\n", mail)
	pass, err := readPassword()
	if err != nil {
		log.Println(err)
		return
	}

	var user = &core.User{
		Mail:     mail,
		Name:     name,
		Role:     role,
		ClientID: clientID,
	}

	if user.Name == "" {
		user.Name = mail
	}

	if err := db.InsertUser(ctx, user); err != nil {
		log.Printf("error creating user %s: %v", mail, err)
		return
	}

	if err := db.SetPassword(ctx, user, string(pass)); err != nil {
		log.Printf("error setting password: %v", err)
		return
	}
}

func setPassword(ctx context.Context, db *core.CoreDB, mail string) {

	user, err := db.GetUserByMail(ctx, mail)
	if err != nil {
		log.Printf("error getting user %s: %v", mail, err)
		return
	}

	fmt.Printf("user %s\n", user.Mail)
	pass, err := readPassword()
	if err != nil {
		log.Println(err)
		return
	}

	if err := db.SetPassword(ctx, user, string(pass)); err != nil {
		log.Printf("error setting password: %v", err)
		return
	}
}

func importPages(ctx context.Context, db *core.CoreDB, filename string) {

	pages, err := readImportFile(filename)
	if err != nil {
		log.Printf("error reading %s: %v", filename, err)
		return
	}

	var imported = 0
	for _, p := range pages {
		if err := db.ImportPage(ctx, p); err != nil {
			log.Printf("error importing %s: %v", p.URL, err)
			continue
		}
		imported++
	}

	log.Printf("imported %d of %d pages", imported, len(pages))
}

func listen(db *core.CoreDB, sessionManager *scs.SessionManager, addr string, base string) {

	var router = backend.NewRouter(&backend.Backend{
		DB:       db,
		Sessions: sessionManager,
	})

	var mux = http.NewServeMux()
	if base == "" {
		mux.Handle("/", router)
	} else {
		mux.Handle(base+"/", http.StripPrefix(base, router)) // http mux needs trailing slash
	}

	// listener and listen

	sigintChannel := make(chan os.Signal, 1)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Println(err)
		return
	}

	log.Printf("listening to %s", addr)

	httpSrv := &http.Server{
		Handler:      sessionManager.LoadAndSave(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := httpSrv.Serve(listener); err != nil {

			// don't panic, we want a graceful shutdown
			if err != http.ErrServerClosed {
				log.Printf("error listening: %v", err)
			}

			// ensure graceful shutdown
			sigintChannel <- os.Interrupt
		}
	}()

	// graceful shutdown

	signal.Notify(sigintChannel, os.Interrupt, syscall.SIGTERM) // SIGINT (Interrupt) or SIGTERM
	<-sigintChannel

	log.Println("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Printf("error shutting down: %v", err)
	}
}
