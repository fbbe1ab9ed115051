package sqlinline

const QInsertEvent = `--sql 806a5e58-6d0b-4ecf-8f8c-d15441ad674d
insert into job_events (job_id, status, message, created_at)
values (?, ?, ?, ?);
`

const QListEventsAfter = `--sql 4b063750-6198-4ea3-9792-5ab416a0cccb
select id, job_id, status, message, created_at
from job_events
where job_id = ? and id > ?
order by id asc;
`
