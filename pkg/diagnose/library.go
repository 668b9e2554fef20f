package diagnose

// Per-domain pattern sets. Extension points exist for RDS, ECR, and
// networking; add a new slice and append it in AllPatterns.

// CrashloopPatterns covers the common reasons a container exits and
// restarts: unreachable dependencies, bad config, port conflicts,
// application-level OOM, filesystem permissions, database auth.
var CrashloopPatterns = []LogPattern{
	mustPattern(
		"crashloop-dependency-unreachable",
		"Dependency unreachable at startup",
		80,
		[]string{
			`connection refused`,
			`no such host`,
			`name resolution failed`,
			`dial tcp .* i/o timeout`,
		},
		"The application fails to reach {dependency} during startup, exits, and Kubernetes restarts it.",
		[]string{
			"kubectl get svc,endpoints -n {namespace} | grep -i {dependency}",
			"kubectl run -it --rm nettest --image=busybox --restart=Never -n {namespace} -- nc -zv {dependency} {port}",
		},
		[]string{
			"Verify the dependency service {dependency} is running and its Service selector matches ready pods",
			"If the dependency is external, check NetworkPolicy and egress rules for the namespace",
		},
		map[string]string{
			"dependency": `(?:dial tcp|connect(?:ion refused)?(?: to)?|lookup|no such host[: ]*)\s*([\w.\-]+(?::\d+)?)`,
			"port":       `:(\d{2,5})\b`,
		},
	),
	mustPattern(
		"crashloop-missing-config",
		"Missing required configuration",
		85,
		[]string{
			`required (?:environment variable|env var|configuration|config key|flag) .* (?:is )?(?:not set|missing|unset)`,
			`missing required (?:environment variable|config|configuration|key)`,
			`no such file or directory.*(?:config|\.ya?ml|\.json|\.toml)`,
			`could not (?:read|load|open) config`,
		},
		"The process exits because required configuration ({config_key}) is missing or unreadable.",
		[]string{
			"kubectl get configmap,secret -n {namespace}",
			"kubectl describe pod {pod} -n {namespace} | grep -A5 'Environment\\|Mounts'",
		},
		[]string{
			"Set the missing key {config_key} in the workload's ConfigMap or Secret and restart the rollout",
		},
		map[string]string{
			"config_key": `(?:environment variable|env var|config key|key|variable)\s+['"]?([A-Za-z_][\w.\-]*)['"]?`,
		},
	),
	mustPattern(
		"crashloop-port-bind",
		"Port already in use",
		85,
		[]string{
			`bind: address already in use`,
			`listen tcp .*: address already in use`,
			`failed to bind to (?:port|address)`,
		},
		"The process cannot bind its listen port {port}; a sidecar or leftover process already holds it.",
		[]string{
			"kubectl get pod {pod} -n {namespace} -o jsonpath='{.spec.containers[*].ports}'",
		},
		[]string{
			"Check for duplicate containerPort declarations or a sidecar listening on the same port",
		},
		map[string]string{
			"port": `(?::|port\s+)(\d{2,5})\b`,
		},
	),
	mustPattern(
		"crashloop-app-oom",
		"Application-level out of memory",
		75,
		[]string{
			`out of memory`,
			`java\.lang\.OutOfMemoryError`,
			`fatal error: runtime: out of memory`,
			`allocation failed .* heap`,
			`killed process .* oom`,
		},
		"The runtime itself reports memory exhaustion before the kernel OOM killer steps in.",
		[]string{
			"kubectl top pod {pod} -n {namespace} --containers",
		},
		[]string{
			"Raise the container memory limit or reduce the application heap (e.g. -Xmx) to fit the limit",
		},
		nil,
	),
	mustPattern(
		"crashloop-permission-denied",
		"Filesystem or capability permission denied",
		80,
		[]string{
			`permission denied`,
			`operation not permitted`,
			`read-only file system`,
		},
		"The process exits on a permission error accessing {path}; usually a securityContext or volume ownership mismatch.",
		[]string{
			"kubectl get pod {pod} -n {namespace} -o jsonpath='{.spec.securityContext}'",
		},
		[]string{
			"Align runAsUser/fsGroup with the volume ownership, or mount the path writable",
		},
		map[string]string{
			"path": `(?:open|stat|mkdir|write|access)\s+([/\w.\-]+):`,
		},
	),
	mustPattern(
		"crashloop-database-connection",
		"Database connection failure",
		80,
		[]string{
			`(?:pq|pgx|mysql|mongo|redis).*(?:connection|authentication|auth) (?:refused|failed|error)`,
			`password authentication failed`,
			`access denied for user`,
			`FATAL: .*database .* does not exist`,
		},
		"The application cannot establish its database connection (user {db_user}); startup aborts and the pod restarts.",
		[]string{
			"kubectl get secret -n {namespace} | grep -i 'db\\|database\\|postgres\\|mysql'",
		},
		[]string{
			"Verify the database credentials secret is current and the database accepts connections from the pod CIDR",
		},
		map[string]string{
			"db_user": `(?:user|role)\s+['"]?([\w\-]+)['"]?`,
		},
	),
}

// S3Patterns covers object-store access failures seen in application logs.
var S3Patterns = []LogPattern{
	mustPattern(
		"s3-access-denied",
		"S3 access denied (403)",
		85,
		[]string{
			`AccessDenied`,
			`status code: 403.*s3`,
			`s3.*(?:403|forbidden)`,
		},
		"S3 rejects requests to bucket {bucket} with 403; the pod's IAM role lacks the required action.",
		[]string{
			"aws s3api get-bucket-policy --bucket {bucket}",
			"aws sts get-caller-identity",
		},
		[]string{
			"Grant the workload's IAM role s3:GetObject/s3:PutObject on bucket {bucket}",
		},
		map[string]string{
			"bucket": `(?:bucket[:= ]+['"]?|s3://)([\w.\-]+)`,
		},
	),
	mustPattern(
		"s3-bucket-not-found",
		"S3 bucket not found (404)",
		90,
		[]string{
			`NoSuchBucket`,
			`bucket .* does not exist`,
			`status code: 404.*s3`,
		},
		"The configured bucket {bucket} does not exist in this account/region.",
		[]string{
			"aws s3api head-bucket --bucket {bucket}",
		},
		[]string{
			"Fix the bucket name in configuration, or create the bucket in the expected region",
		},
		map[string]string{
			"bucket": `(?:bucket[:= ]+['"]?|s3://)([\w.\-]+)`,
		},
	),
	mustPattern(
		"s3-credentials",
		"AWS credentials missing or expired",
		85,
		[]string{
			`NoCredentialProviders`,
			`InvalidAccessKeyId`,
			`ExpiredToken`,
			`could not find (?:aws )?credentials`,
		},
		"The SDK cannot obtain valid AWS credentials; IRSA annotation or token projection is broken.",
		[]string{
			"kubectl get sa -n {namespace} -o yaml | grep -A2 'eks.amazonaws.com/role-arn'",
		},
		[]string{
			"Re-attach the IAM role annotation to the service account and restart the pods",
		},
		nil,
	),
	mustPattern(
		"s3-region-mismatch",
		"S3 region mismatch",
		85,
		[]string{
			`AuthorizationHeaderMalformed.*region`,
			`PermanentRedirect`,
			`the bucket is in this region: ([\w\-]+)`,
		},
		"Requests target the wrong region for bucket {bucket}; S3 redirects or rejects them.",
		[]string{
			"aws s3api get-bucket-location --bucket {bucket}",
		},
		[]string{
			"Set the client region to the bucket's actual region {region}",
		},
		map[string]string{
			"bucket": `(?:bucket[:= ]+['"]?|s3://)([\w.\-]+)`,
			"region": `region[:' ]+([a-z]{2}-[a-z]+-\d)`,
		},
	),
}

// AllPatterns is the full library in stable order.
func AllPatterns() []LogPattern {
	out := make([]LogPattern, 0, len(CrashloopPatterns)+len(S3Patterns))
	out = append(out, CrashloopPatterns...)
	out = append(out, S3Patterns...)
	return out
}
