/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package config

const (
	// server
	serverPrefix = "server."
	serverPort   = serverPrefix + "port"

	// health_check
	healthCheckPrefix = "health_check."
	healthCheckEnable = healthCheckPrefix + "enable"

	// metrics
	metricsPrefix = "metrics."
	metricsEnable = metricsPrefix + "enable"

	// db
	dbPrefix               = "db."
	dbHost                 = dbPrefix + "host"
	dbPort                 = dbPrefix + "port"
	dbName                 = dbPrefix + "name"
	dbUser                 = dbPrefix + "user"
	dbPassword             = dbPrefix + "password"
	dbSslMode              = dbPrefix + "ssl_mode"
	dbMaxOpenConns         = dbPrefix + "max_open_conns"
	dbMaxIdleConns         = dbPrefix + "max_idle_conns"
	dbMaxLifetime          = dbPrefix + "max_life_time_second"
	dbMaxIdleTimeSecond    = dbPrefix + "max_idle_time_second"
	dbConnectTimeoutSecond = dbPrefix + "connect_timeout_second"
	dbRequestTimeoutSecond = dbPrefix + "request_timeout_second"

	// autorouter
	autoRouterPrefix           = "autorouter."
	autoRouterMaxBytes         = autoRouterPrefix + "max_bytes"
	autoRouterMaxItems         = autoRouterPrefix + "max_items"
	autoRouterConfidenceHigh   = autoRouterPrefix + "confidence_high"
	autoRouterConfidenceMedium = autoRouterPrefix + "confidence_medium"
	autoRouterConfidenceLow    = autoRouterPrefix + "confidence_low"
	autoRouterProfileTTLSecond = autoRouterPrefix + "profile_ttl_second"

	// shard
	shardPrefix          = "shard."
	shardMaxWindowDays   = shardPrefix + "max_window_days"
	shardMaxBytes        = shardPrefix + "max_bytes"
	shardMaxItems        = shardPrefix + "max_items"
	shardMaxPerCustodian = shardPrefix + "max_per_custodian"
	shardAdaptive        = shardPrefix + "adaptive"
	shardAlignCalendar   = shardPrefix + "align_calendar"
	shardMinWindowDays   = shardPrefix + "min_window_days"
	shardMaxRetries      = shardPrefix + "max_retries"
	shardMaxTotalShards  = shardPrefix + "max_total_shards"

	// scheduler
	schedulerPrefix              = "scheduler."
	schedulerLeaseDurationSecond = schedulerPrefix + "lease_duration_s"
	schedulerReapIntervalSecond  = schedulerPrefix + "reap_interval_s"

	// delta
	deltaPrefix      = "delta."
	deltaMaxAgeDays  = deltaPrefix + "max_age_days"
	deltaMaxFailures = deltaPrefix + "max_failures"

	// reconcile
	reconcilePrefix           = "reconcile."
	reconcileSizeTolerancePct = reconcilePrefix + "size_tolerance_pct"
	reconcileExtraTolerance   = reconcilePrefix + "extra_tolerance_pct"
	reconcileRequireHashMatch = reconcilePrefix + "require_hash_match"
	reconcileNormalizePaths   = reconcilePrefix + "normalize_paths"
	reconcileIncludeFolders   = reconcilePrefix + "include_folders"
	reconcileReportsDir       = reconcilePrefix + "reports_dir"

	// artifact
	artifactPrefix  = "artifact."
	artifactBackend = artifactPrefix + "backend"
	artifactRoot    = artifactPrefix + "root"

	// s3
	s3Prefix    = "s3."
	s3Enable    = s3Prefix + "enable"
	s3AccessKey = s3Prefix + "access_key"
	s3SecretKey = s3Prefix + "secret_key"
	s3Bucket    = s3Prefix + "bucket"
	s3Endpoint  = s3Prefix + "endpoint"
	s3ExpireDay = s3Prefix + "expire_day"

	// worker
	workerPrefix              = "worker."
	workerEnable              = workerPrefix + "enable"
	workerId                  = workerPrefix + "id"
	workerMaxConcurrentShards = workerPrefix + "max_concurrent_shards"
	workerPollIntervalSecond  = workerPrefix + "poll_interval_second"
	workerLeaseSlackSecond    = workerPrefix + "lease_slack_second"

	// queue (bulk pipeline transport)
	queuePrefix               = "queue."
	queueTriggerTopic         = queuePrefix + "trigger_topic"
	queueStatusTopic          = queuePrefix + "status_topic"
	queuePollIntervalSecond   = queuePrefix + "poll_interval_second"
	queueProcessTimeoutSecond = queuePrefix + "process_timeout_second"
	queueMaxRetries           = queuePrefix + "max_retries"
	queueRetentionHour        = queuePrefix + "retention_hour"

	// bulk (binary fetcher)
	bulkPrefix           = "bulk."
	bulkDatasetEndpoint  = bulkPrefix + "dataset_endpoint"
	bulkFetchConcurrency = bulkPrefix + "fetch_concurrency"

	// source (per-item connector)
	sourcePrefix   = "source."
	sourceEndpoint = sourcePrefix + "endpoint"
	sourcePageSize = sourcePrefix + "page_size"

	// quota (per-custodian consumption budget)
	quotaPrefix     = "quota."
	quotaLimitBytes = quotaPrefix + "limit_bytes"
	quotaLimitItems = quotaPrefix + "limit_items"

	// manifest
	manifestPrefix         = "manifest."
	manifestSignEnable     = manifestPrefix + "sign_enable"
	manifestSigningKeyPath = manifestPrefix + "signing_key_path"

	// notification
	notificationPrefix   = "notification."
	notificationEnable   = notificationPrefix + "enable"
	notificationSMTPHost = notificationPrefix + "smtp_host"
	notificationSMTPPort = notificationPrefix + "smtp_port"
	notificationUsername = notificationPrefix + "username"
	notificationPassword = notificationPrefix + "password"
	notificationFrom     = notificationPrefix + "from"
	notificationUseTLS   = notificationPrefix + "use_tls"
	notificationTo       = notificationPrefix + "to"
	notificationTopics   = notificationPrefix + "topics"
)
