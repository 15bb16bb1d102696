package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "auth":
		handleAuth(args)
	case "divisions":
		listDivisions(args)
	case "credentials":
		handleCredentials(args)
	case "admin":
		handleAdmin(args)
	case "seed":
		seed(args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handleAuth(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: credvault auth <register|login|logout|who>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "register":
		registerUser(args[1:])
	case "login":
		loginUser(args[1:])
	case "logout":
		logoutUser()
	case "who":
		whoAmI()
	default:
		fmt.Printf("unknown auth command: %s\n", subCmd)
	}
}

func handleCredentials(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: credvault credentials <list|create|update>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "list":
		listCredentials(args[1:])
	case "create":
		createCredential(args[1:])
	case "update":
		updateCredential(args[1:])
	default:
		fmt.Printf("unknown credentials command: %s\n", subCmd)
	}
}

func handleAdmin(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: credvault admin <users|set-role|grant|revoke|units|create-unit|create-division>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "users":
		listUsers(args[1:])
	case "set-role":
		setRole(args[1:])
	case "grant":
		grantMembership(args[1:])
	case "revoke":
		revokeMembership(args[1:])
	case "units":
		listUnits(args[1:])
	case "create-unit":
		createUnit(args[1:])
	case "create-division":
		createDivision(args[1:])
	default:
		fmt.Printf("unknown admin command: %s\n", subCmd)
	}
}

// Auth commands
func registerUser(args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	username := fs.String("username", "", "username")
	password := fs.String("password", "", "password")

	fs.Parse(args)

	if *username == "" || *password == "" {
		fmt.Println("Error: username and password are required")
		fs.PrintDefaults()
		return
	}

	result, status, err := post("/auth/register", map[string]string{
		"username": *username,
		"password": *password,
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == 201 {
		fmt.Printf("✓ User registered: %s\n", *username)
		if token, ok := result["token"].(string); ok {
			saveToken(token)
		}
	} else {
		fmt.Printf("✗ Registration failed: %v\n", result)
	}
}

func loginUser(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("username", "", "username")
	password := fs.String("password", "", "password")

	fs.Parse(args)

	if *username == "" || *password == "" {
		fmt.Println("Error: username and password are required")
		fs.PrintDefaults()
		return
	}

	result, status, err := post("/auth/login", map[string]string{
		"username": *username,
		"password": *password,
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == 200 {
		if token, ok := result["token"].(string); ok {
			saveToken(token)
			fmt.Printf("✓ Logged in as: %s (%v)\n", *username, result["role"])
		}
	} else {
		fmt.Printf("✗ Login failed: %v\n", result)
	}
}

func logoutUser() {
	os.Remove(tokenFile())
	fmt.Println("✓ Logged out")
}

func whoAmI() {
	token := loadToken()
	if token == "" {
		fmt.Println("Not logged in")
		return
	}
	fmt.Printf("✓ Logged in (token: %s...)\n", token[:20])
}

// Division commands
func listDivisions(args []string) {
	_ = args
	var divisions []map[string]interface{}
	if err := getJSON("/divisions", &divisions); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tUNIT")
	for _, d := range divisions {
		fmt.Fprintf(w, "%v\t%v\t%v\n", d["id"], d["name"], d["unitId"])
	}
	w.Flush()
}

// Credential commands
func listCredentials(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	division := fs.String("division", "", "division ID")
	fs.Parse(args)

	if *division == "" {
		fmt.Println("Error: division is required")
		fs.PrintDefaults()
		return
	}

	var credentials []map[string]interface{}
	if err := getJSON("/credentials/"+*division, &credentials); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSITE\tUSERNAME\tPASSWORD")
	for _, c := range credentials {
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\n", c["id"], c["siteName"], c["username"], c["password"])
	}
	w.Flush()
}

func createCredential(args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	site := fs.String("site", "", "site name")
	username := fs.String("username", "", "stored username")
	password := fs.String("password", "", "stored password")
	division := fs.String("division", "", "division ID")
	fs.Parse(args)

	if *site == "" || *username == "" || *password == "" || *division == "" {
		fmt.Println("Error: site, username, password, and division are required")
		fs.PrintDefaults()
		return
	}

	result, status, err := post("/credentials", map[string]string{
		"siteName":   *site,
		"username":   *username,
		"password":   *password,
		"divisionId": *division,
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == 201 {
		fmt.Printf("✓ Credential created: %v\n", result["id"])
	} else {
		fmt.Printf("✗ Create failed: %v\n", result)
	}
}

func updateCredential(args []string) {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	id := fs.String("id", "", "credential ID")
	site := fs.String("site", "", "new site name (optional)")
	username := fs.String("username", "", "new stored username (optional)")
	password := fs.String("password", "", "new stored password (optional)")
	fs.Parse(args)

	if *id == "" {
		fmt.Println("Error: id is required")
		fs.PrintDefaults()
		return
	}

	payload := map[string]string{}
	if *site != "" {
		payload["siteName"] = *site
	}
	if *username != "" {
		payload["username"] = *username
	}
	if *password != "" {
		payload["password"] = *password
	}

	result, status, err := send("PUT", "/credentials/"+*id, payload)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == 200 {
		fmt.Printf("✓ Credential updated: %v\n", result["id"])
	} else {
		fmt.Printf("✗ Update failed: %v\n", result)
	}
}

// Admin commands
func listUsers(args []string) {
	_ = args
	var users []map[string]interface{}
	if err := getJSON("/admin/users", &users); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tROLE\tDIVISIONS\tUNITS")
	for _, u := range users {
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\n", u["id"], u["username"], u["role"], u["divisions"], u["units"])
	}
	w.Flush()
}

func setRole(args []string) {
	fs := flag.NewFlagSet("set-role", flag.ExitOnError)
	user := fs.String("user", "", "user ID")
	role := fs.String("role", "", "normal, management, or admin")
	fs.Parse(args)

	if *user == "" || *role == "" {
		fmt.Println("Error: user and role are required")
		fs.PrintDefaults()
		return
	}

	result, status, err := send("PUT", "/admin/users/"+*user+"/role", map[string]string{"role": *role})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == 200 {
		fmt.Printf("✓ Role set: %v is now %v\n", result["username"], result["role"])
	} else {
		fmt.Printf("✗ Role change failed: %v\n", result)
	}
}

func grantMembership(args []string) {
	fs := flag.NewFlagSet("grant", flag.ExitOnError)
	user := fs.String("user", "", "user ID")
	division := fs.String("division", "", "division ID")
	unit := fs.String("unit", "", "unit ID")
	fs.Parse(args)

	if *user == "" || (*division == "" && *unit == "") {
		fmt.Println("Error: user and one of division or unit are required")
		fs.PrintDefaults()
		return
	}

	var (
		result map[string]interface{}
		status int
		err    error
	)
	if *division != "" {
		result, status, err = post("/admin/users/"+*user+"/divisions", map[string]string{"divisionId": *division})
	} else {
		result, status, err = post("/admin/users/"+*user+"/units", map[string]string{"unitId": *unit})
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == 200 {
		fmt.Printf("✓ Membership granted to %v\n", result["username"])
	} else {
		fmt.Printf("✗ Grant failed: %v\n", result)
	}
}

func revokeMembership(args []string) {
	fs := flag.NewFlagSet("revoke", flag.ExitOnError)
	user := fs.String("user", "", "user ID")
	division := fs.String("division", "", "division ID")
	unit := fs.String("unit", "", "unit ID")
	fs.Parse(args)

	if *user == "" || (*division == "" && *unit == "") {
		fmt.Println("Error: user and one of division or unit are required")
		fs.PrintDefaults()
		return
	}

	path := "/admin/users/" + *user + "/divisions/" + *division
	if *division == "" {
		path = "/admin/users/" + *user + "/units/" + *unit
	}
	result, status, err := send("DELETE", path, nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == 200 {
		fmt.Printf("✓ Membership revoked from %v\n", result["username"])
	} else {
		fmt.Printf("✗ Revoke failed: %v\n", result)
	}
}

func listUnits(args []string) {
	_ = args
	var units []map[string]interface{}
	if err := getJSON("/admin/units", &units); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME")
	for _, u := range units {
		fmt.Fprintf(w, "%v\t%v\n", u["id"], u["name"])
	}
	w.Flush()
}

func createUnit(args []string) {
	fs := flag.NewFlagSet("create-unit", flag.ExitOnError)
	name := fs.String("name", "", "unit name")
	fs.Parse(args)

	if *name == "" {
		fmt.Println("Error: name is required")
		fs.PrintDefaults()
		return
	}

	result, status, err := post("/admin/units", map[string]string{"name": *name})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == 201 {
		fmt.Printf("✓ Unit created: %v\n", result["id"])
	} else {
		fmt.Printf("✗ Create failed: %v\n", result)
	}
}

func createDivision(args []string) {
	fs := flag.NewFlagSet("create-division", flag.ExitOnError)
	name := fs.String("name", "", "division name")
	unit := fs.String("unit", "", "parent unit ID")
	fs.Parse(args)

	if *name == "" || *unit == "" {
		fmt.Println("Error: name and unit are required")
		fs.PrintDefaults()
		return
	}

	result, status, err := post("/admin/divisions", map[string]string{"name": *name, "unitId": *unit})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == 201 {
		fmt.Printf("✓ Division created: %v\n", result["id"])
	} else {
		fmt.Printf("✗ Create failed: %v\n", result)
	}
}

func seed(args []string) {
	_ = args
	result, status, err := post("/seed", nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == 200 {
		fmt.Println("✓ Demo data seeded")
	} else {
		fmt.Printf("✗ Seed failed: %v\n", result)
	}
}

// Helper functions
func getAPIURL() string {
	if url := os.Getenv("CREDVAULT_API"); url != "" {
		return url
	}
	return "http://localhost:8080/api"
}

func post(path string, payload map[string]string) (map[string]interface{}, int, error) {
	return send("POST", path, payload)
}

func send(method, path string, payload map[string]string) (map[string]interface{}, int, error) {
	var body *bytes.Reader
	if payload != nil {
		data, _ := json.Marshal(payload)
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, getAPIURL()+path, body)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	addAuthHeader(req)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	return result, resp.StatusCode, nil
}

func getJSON(path string, out interface{}) error {
	req, err := http.NewRequest("GET", getAPIURL()+path, nil)
	if err != nil {
		return err
	}
	addAuthHeader(req)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		var apiErr map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("request failed (%d): %v", resp.StatusCode, apiErr)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func tokenFile() string {
	home, _ := os.UserHomeDir()
	return home + "/.credvault/token"
}

func saveToken(token string) error {
	home, _ := os.UserHomeDir()
	os.MkdirAll(home+"/.credvault", 0700)
	return os.WriteFile(tokenFile(), []byte(token), 0600)
}

func loadToken() string {
	data, _ := os.ReadFile(tokenFile())
	return string(data)
}

func addAuthHeader(req *http.Request) {
	token := loadToken()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func printUsage() {
	fmt.Print(`CredVault CLI

Usage:
  credvault <command> [options]

Commands:
  auth         User authentication (register, login, logout, who)
  divisions    List divisions visible to you
  credentials  Credential operations (list, create, update)
  admin        Admin operations (users, set-role, grant, revoke, units,
               create-unit, create-division) - admin access required
  seed         Seed demo data (server must have the seed flag enabled)
  help         Show this help message

Environment Variables:
  CREDVAULT_API    API endpoint (default: http://localhost:8080/api)

Examples:
  credvault auth register -username alice -password Password123
  credvault auth login -username alice -password Password123
  credvault divisions
  credvault credentials list -division <division-id>
  credvault admin grant -user <user-id> -division <division-id>
`)
}
