// Command issuectl is a terminal client for the issue tracker API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/msomdec/issue-tracker/internal/client"
)

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	ctx := context.Background()
	var err error
	switch cmd {
	case "register":
		err = commandRegister(ctx, args)
	case "login":
		err = commandLogin(ctx, args)
	case "logout":
		err = commandLogout(ctx)
	case "whoami":
		err = commandWhoami(ctx)
	case "list":
		err = commandList(ctx, os.Stdout)
	case "show":
		err = commandShow(ctx, args, os.Stdout)
	case "create":
		err = commandCreate(ctx, args)
	case "update":
		err = commandUpdate(ctx, args)
	case "delete":
		err = commandDelete(ctx, args)
	case "version", "--version", "-v":
		fmt.Println(strings.TrimSpace(buildVersion))
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", explain(err))
		os.Exit(1)
	}
}

// app wires the API client, persisted session, and issue cache for a
// single command invocation.
type app struct {
	api     *client.API
	session *client.Session
}

func newApp(ctx context.Context) (*app, error) {
	api, err := client.NewAPI(os.Getenv("ISSUES_API_URL"))
	if err != nil {
		return nil, err
	}
	path := os.Getenv("ISSUECTL_SESSION_FILE")
	if path == "" {
		if path, err = client.DefaultSessionPath(); err != nil {
			return nil, err
		}
	}
	a := &app{api: api, session: client.NewSession(api, client.NewFileStore(path))}
	if err := a.session.Start(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// explain turns session errors into instructions the user can act on.
func explain(err error) error {
	switch {
	case errors.Is(err, client.ErrSessionExpired):
		return errors.New("your session has expired, run 'issuectl login --email <email>' to sign in again")
	case errors.Is(err, client.ErrNotAuthenticated):
		return errors.New("please login first using 'issuectl login --email <email>'")
	}
	return err
}

// readPassword returns the --password value exactly as given, prompting only
// when the flag is blank.
func readPassword(flagValue string) (string, error) {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue, nil
	}
	fmt.Print("Password: ")
	bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Print("\n")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(bytes), nil
}

func commandRegister(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	fs.Parse(args)

	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	secret, err := readPassword(*password)
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	user, err := a.session.Register(ctx, *email, secret)
	if err != nil {
		return err
	}
	fmt.Printf("registered %s, now run 'issuectl login --email %s'\n", user.Email, user.Email)
	return nil
}

func commandLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	fs.Parse(args)

	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	secret, err := readPassword(*password)
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	user, err := a.session.Login(ctx, *email, secret)
	if err != nil {
		return err
	}
	fmt.Printf("logged in as %s\n", user.Email)
	return nil
}

func commandLogout(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	if err := a.session.Logout(); err != nil {
		return err
	}
	fmt.Println("logged out")
	return nil
}

func commandWhoami(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	var user client.User
	err = a.session.Do(ctx, func(ctx context.Context, token string) error {
		var err error
		user, err = a.api.Me(ctx, token)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s (%s)\n", user.Email, user.ID)
	return nil
}

func commandList(ctx context.Context, out io.Writer) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	if st := a.session.Snapshot().Status; st != client.StatusAuthenticated {
		return client.ErrNotAuthenticated
	}

	cache := client.NewIssueCache(a.api, a.session)
	defer cache.Close()
	cache.Wait()

	if a.session.Snapshot().Status == client.StatusExpired {
		return client.ErrSessionExpired
	}
	snap := cache.Snapshot()
	if snap.Err != nil {
		return snap.Err
	}
	return printIssues(out, snap.Issues)
}

func printIssues(out io.Writer, issues []client.Issue) error {
	if len(issues) == 0 {
		_, err := fmt.Fprintln(out, "no issues")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tSEVERITY\tPRIORITY\tTITLE")
	for _, i := range issues {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", i.ID, i.Status, i.Severity, i.Priority, i.Title)
	}
	return tw.Flush()
}

func commandShow(ctx context.Context, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errors.New("usage: issuectl show <id>")
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	var issue client.Issue
	err = a.session.Do(ctx, func(ctx context.Context, token string) error {
		var err error
		issue, err = a.api.GetIssue(ctx, token, args[0])
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\n\n%s\n\n", issue.Title, issue.Description)
	fmt.Fprintf(out, "ID:        %s\nStatus:    %s\nSeverity:  %s\nPriority:  %s\nCreated:   %s\n",
		issue.ID, issue.Status, issue.Severity, issue.Priority, issue.CreatedAt.Local().Format("2006-01-02 15:04"))
	return nil
}

// issueFlags registers the editable fields on fs. Only flags the user sets
// end up in the request, so updates leave the rest untouched.
func issueFlags(fs *flag.FlagSet) func() client.IssueInput {
	title := fs.String("title", "", "Issue title")
	description := fs.String("description", "", "Issue description")
	severity := fs.String("severity", "", "Low, Medium, or High")
	priority := fs.String("priority", "", "Low, Medium, or High")
	status := fs.String("status", "", "Open, In Progress, Testing, Resolved, or Closed")

	return func() client.IssueInput {
		var in client.IssueInput
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "title":
				in.Title = title
			case "description":
				in.Description = description
			case "severity":
				in.Severity = severity
			case "priority":
				in.Priority = priority
			case "status":
				in.Status = status
			}
		})
		return in
	}
}

func commandCreate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	input := issueFlags(fs)
	fs.Parse(args)

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	var issue client.Issue
	err = a.session.Do(ctx, func(ctx context.Context, token string) error {
		var err error
		issue, err = a.api.CreateIssue(ctx, token, input())
		return err
	})
	if err != nil {
		return err
	}
	fmt.Printf("created %s\n", issue.ID)
	return nil
}

func commandUpdate(ctx context.Context, args []string) error {
	if len(args) < 1 || strings.HasPrefix(args[0], "-") {
		return errors.New("usage: issuectl update <id> [--title ...] [--status ...]")
	}
	id := args[0]
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	input := issueFlags(fs)
	fs.Parse(args[1:])

	in := input()
	if in == (client.IssueInput{}) {
		return errors.New("nothing to update, pass at least one field flag")
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	var issue client.Issue
	err = a.session.Do(ctx, func(ctx context.Context, token string) error {
		var err error
		issue, err = a.api.UpdateIssue(ctx, token, id, in)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Printf("updated %s (%s)\n", issue.ID, issue.Status)
	return nil
}

func commandDelete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: issuectl delete <id>")
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	err = a.session.Do(ctx, func(ctx context.Context, token string) error {
		return a.api.DeleteIssue(ctx, token, args[0])
	})
	if err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", args[0])
	return nil
}

func printUsage() {
	fmt.Printf("issuectl %s\n\n", buildVersion)
	fmt.Print(`Usage:
	issuectl register --email user@example.com [--password secret]
	issuectl login --email user@example.com [--password secret]
	issuectl logout
	issuectl whoami
	issuectl list
	issuectl show <id>
	issuectl create --title T --description D [--severity S] [--priority P] [--status S]
	issuectl update <id> [--title T] [--description D] [--severity S] [--priority P] [--status S]
	issuectl delete <id>
	issuectl version

Environment:
	ISSUES_API_URL         API base URL (default http://localhost:5000)
	ISSUECTL_SESSION_FILE  session file (default <user config dir>/issuectl/session.json)
`)
}
